package main

import "strings"

// Flags is the driver configuration: positional inputs, the output
// path, and +Name / -Name toggles. Unknown flags are silently ignored.
type Flags struct {
	Inputs []string
	Output string

	TraceLexer          bool
	TokensOnly          bool
	PrintFinalAST       bool
	TraceParser         bool
	TraceSemant         bool
	TraceCodeGen        bool
	TraceOpts           bool
	VerifyOops          bool
	UseArchSpecFeatures bool
	DoOpts              bool
	ReduceGCSpills      bool
	UseMipsBackend      bool
}

func ParseFlags(args []string) *Flags {
	f := &Flags{}
	bools := map[string]*bool{
		"TraceLexer":          &f.TraceLexer,
		"TokensOnly":          &f.TokensOnly,
		"PrintFinalAST":       &f.PrintFinalAST,
		"TraceParser":         &f.TraceParser,
		"TraceSemant":         &f.TraceSemant,
		"TraceCodeGen":        &f.TraceCodeGen,
		"TraceOpts":           &f.TraceOpts,
		"VerifyOops":          &f.VerifyOops,
		"UseArchSpecFeatures": &f.UseArchSpecFeatures,
		"DoOpts":              &f.DoOpts,
		"ReduceGCSpills":      &f.ReduceGCSpills,
		"UseMipsBackend":      &f.UseMipsBackend,
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-o" && i+1 < len(args):
			i++
			f.Output = args[i]
		case strings.HasPrefix(arg, "+"):
			if p, ok := bools[arg[1:]]; ok {
				*p = true
			}
		case strings.HasPrefix(arg, "-"):
			if p, ok := bools[arg[1:]]; ok {
				*p = false
			}
		default:
			f.Inputs = append(f.Inputs, arg)
		}
	}
	return f
}

// Extension of the selected target's output.
func (f *Flags) Extension() string {
	if f.UseMipsBackend {
		return ".s"
	}
	return ".ll"
}
