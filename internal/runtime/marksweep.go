package runtime

// MarkSweepGC marks from the stack-map roots and sweeps the region,
// returning unmarked chunks to the allocator.
type MarkSweepGC struct {
	heap   *Heap
	alloc  *NextFitAllocator
	marker *Marker
	walker *StackWalker
	stats  *Stats
}

func NewMarkSweepGC(h *Heap, w *StackWalker, ti TypeInfo, stats *Stats) *MarkSweepGC {
	a := NewNextFitAllocator(h, RegionStart, h.SizeBytes())
	return &MarkSweepGC{
		heap:   h,
		alloc:  a,
		marker: NewMarker(h, a, ti),
		walker: w,
		stats:  stats,
	}
}

func (g *MarkSweepGC) Allocator() *NextFitAllocator { return g.alloc }

func (g *MarkSweepGC) Collect() {
	g.stats.Cycles++
	g.marker.MarkFromRoots(g.walker)
	g.sweep()
}

func (g *MarkSweepGC) sweep() {
	scan := g.alloc.Start()
	end := g.alloc.End()
	for scan < end {
		size := g.heap.Size(scan)
		switch g.heap.Mark(scan) {
		case MarkSet:
			g.heap.SetMark(scan, MarkUnset)
			g.stats.MarkedTotal++
		case MarkUnused:
			// already free
		default:
			g.alloc.Free(scan)
		}
		scan += size
	}
}
