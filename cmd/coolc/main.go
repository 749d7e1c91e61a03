package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"coolc/internal/ast"
	"coolc/internal/codegen/data"
	"coolc/internal/codegen/irgen"
	"coolc/internal/codegen/mips"
	"coolc/internal/diag"
	"coolc/internal/klass"
	"coolc/internal/lexer"
	"coolc/internal/myir"
	"coolc/internal/myir/pass"
	"coolc/internal/parser"
	"coolc/internal/semant"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := ParseFlags(args)
	if len(flags.Inputs) == 0 {
		fmt.Fprintln(os.Stderr, "coolc: no input files")
		return 255
	}

	// every positional argument is a source file; their classes are
	// concatenated before semantic analysis
	program := &ast.Program{}
	for _, file := range flags.Inputs {
		lx, err := lexer.New(file)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 255
		}
		if flags.TokensOnly || flags.TraceLexer {
			if code := dumpTokens(lx, flags); flags.TokensOnly {
				return code
			}
			// tracing consumed the stream; reopen for parsing
			lx, _ = lexer.New(file)
		}
		p := parser.New(lx)
		part := p.Parse()
		if part == nil {
			fmt.Fprintln(os.Stderr, p.ErrorMsg())
			return 255
		}
		if flags.TraceParser {
			fmt.Fprintf(os.Stderr, "parsed %s: %d classes\n", file, len(part.Classes))
		}
		program.Classes = append(program.Classes, part.Classes...)
	}

	root, errs := semant.Analyze(program)
	if root == nil {
		diag.Print(os.Stderr, errs)
		return 255
	}
	if flags.TraceSemant {
		fmt.Fprintln(os.Stderr, "semantic analysis passed")
	}
	if flags.PrintFinalAST {
		ast.Dump(os.Stdout, program)
	}

	out := flags.Output
	if out == "" {
		base := filepath.Base(flags.Inputs[0])
		out = strings.TrimSuffix(base, filepath.Ext(base)) + flags.Extension()
	}

	var text string
	if flags.UseMipsBackend {
		kb := klass.NewBuilder(root, mips.WordSize)
		cg := mips.New(kb, data.New(kb))
		text = cg.Generate()
	} else {
		kb := klass.NewBuilder(root, irgen.WordSize)
		cg := irgen.New(kb, data.New(kb))
		module := cg.Generate()
		myir.ConstructSSA(module)
		if flags.DoOpts {
			pm := pass.NewManager(module)
			if flags.TraceOpts {
				pm.Trace = func(p string, f *myir.Function) {
					fmt.Fprintf(os.Stderr, "pass %s: %s\n", p, f.Name())
				}
			}
			pm.Add(pass.DIE{})
			pm.Add(pass.NCE{AllocFunc: irgen.GCAllocName})
			pm.Add(pass.Unboxing{FieldOffset: irgen.FieldOffset, InitSuffix: "_init"})
			pm.Add(pass.DIE{})
			pm.Run()
		}
		text = irgen.NewEmitter(module).Emit()
	}
	if flags.TraceCodeGen {
		fmt.Fprintf(os.Stderr, "code generation done: %d bytes\n", len(text))
	}

	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrapf(err, "coolc: can't write %s", out))
		return 255
	}
	return 0
}

// dumpTokens prints the token stream; the PA2-style TokensOnly output.
func dumpTokens(lx *lexer.Lexer, flags *Flags) int {
	fmt.Printf("#name %q\n", lx.FileName())
	for t := lx.Next(); t != nil; t = lx.Next() {
		fmt.Println(t.String())
	}
	return 0
}
