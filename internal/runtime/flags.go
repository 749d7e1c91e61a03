package runtime

import (
	"strconv"
	"strings"
)

// Flags is the generated program's runtime configuration, parsed from
// argv: +Name / -Name toggles and Name=value settings.
type Flags struct {
	PrintGCStatistics     bool
	PrintAllocatedObjects bool
	TraceMarking          bool
	TraceStackSlotUpdate  bool
	TraceObjectFieldUpdate bool
	TraceObjectMoving     bool
	TraceGCCycles         bool
	PrintStackMaps        bool
	TraceStackWalker      bool

	MaxHeapSize int64
	GCAlgo      GCAlgo
}

// DefaultHeapSize bounds the mutator heap unless MaxHeapSize overrides.
const DefaultHeapSize = 8 << 20

func ParseFlags(args []string) *Flags {
	f := &Flags{MaxHeapSize: DefaultHeapSize, GCAlgo: MarkSweepAlgo}
	bools := map[string]*bool{
		"PrintGCStatistics":      &f.PrintGCStatistics,
		"PrintAllocatedObjects":  &f.PrintAllocatedObjects,
		"TraceMarking":           &f.TraceMarking,
		"TraceStackSlotUpdate":   &f.TraceStackSlotUpdate,
		"TraceObjectFieldUpdate": &f.TraceObjectFieldUpdate,
		"TraceObjectMoving":      &f.TraceObjectMoving,
		"TraceGCCycles":          &f.TraceGCCycles,
		"PrintStackMaps":         &f.PrintStackMaps,
		"TraceStackWalker":       &f.TraceStackWalker,
	}
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "+"):
			if p, ok := bools[arg[1:]]; ok {
				*p = true
			}
		case strings.HasPrefix(arg, "-"):
			if p, ok := bools[arg[1:]]; ok {
				*p = false
			}
		case strings.Contains(arg, "="):
			name, value, _ := strings.Cut(arg, "=")
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			switch name {
			case "MaxHeapSize":
				f.MaxHeapSize = n
			case "GCAlgo":
				f.GCAlgo = GCAlgo(n)
			}
		}
	}
	return f
}
