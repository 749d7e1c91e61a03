package runtime

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// GCAlgo selects the collector wired behind _gc_alloc.
type GCAlgo int

const (
	ZeroGCAlgo GCAlgo = iota
	MarkSweepAlgo
	ThreadedMarkCompactAlgo
	CompressorAlgo
	SemispaceCopyingAlgo
)

// RegionStart is where the collected region begins; everything below it
// is the rodata area for constants, which never moves.
const RegionStart Address = 1 << 16

// Collector is one stop-the-world collection algorithm.
type Collector interface {
	Collect()
	Allocator() *NextFitAllocator
}

// Stats counts collection work for the PrintGCStatistics flag.
type Stats struct {
	Cycles        int64
	MarkedTotal   int64
	BytesMoved    int64
}

func (s *Stats) Report(alloc *NextFitAllocator, out func(string)) {
	out(fmt.Sprintf("GC cycles: %d", s.Cycles))
	out(fmt.Sprintf("allocated: %s in %d objects",
		humanize.IBytes(uint64(alloc.Allocated)), alloc.AllocCount))
	out(fmt.Sprintf("freed: %s", humanize.IBytes(uint64(alloc.Freed))))
	out(fmt.Sprintf("moved: %s", humanize.IBytes(uint64(s.BytesMoved))))
}

// ZeroGC never collects; allocation failure is fatal.
type ZeroGC struct {
	alloc *NextFitAllocator
}

func NewZeroGC(h *Heap) *ZeroGC {
	return &ZeroGC{alloc: NewNextFitAllocator(h, RegionStart, h.SizeBytes())}
}

func (g *ZeroGC) Collect()                     {}
func (g *ZeroGC) Allocator() *NextFitAllocator { return g.alloc }
