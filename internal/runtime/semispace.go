package runtime

// SemispaceGC is a Cheney copying collector: the region is split in
// two, live objects are evacuated into the idle half, and the halves
// swap roles. Forwarding addresses live in the mark word of evacuated
// from-space objects.
type SemispaceGC struct {
	heap   *Heap
	alloc  *NextFitAllocator
	walker *StackWalker
	ti     TypeInfo
	stats  *Stats

	fromStart Address
	fromEnd   Address
	toStart   Address
	toEnd     Address
}

func NewSemispaceGC(h *Heap, w *StackWalker, ti TypeInfo, stats *Stats) *SemispaceGC {
	half := (h.SizeBytes() - RegionStart) / 2 / WordSize * WordSize
	g := &SemispaceGC{
		heap:   h,
		walker: w,
		ti:     ti,
		stats:  stats,

		fromStart: RegionStart,
		fromEnd:   RegionStart + half,
		toStart:   RegionStart + half,
		toEnd:     RegionStart + 2*half,
	}
	g.alloc = NewNextFitAllocator(h, g.fromStart, g.fromEnd)
	return g
}

func (g *SemispaceGC) Allocator() *NextFitAllocator { return g.alloc }

func (g *SemispaceGC) isForwarded(obj Address) bool {
	m := g.heap.Mark(obj)
	return m >= g.toStart && m < g.toEnd
}

// evacuate copies one object into to-space and leaves the forwarding
// address in its mark word.
func (g *SemispaceGC) evacuate(obj Address, free *Address) Address {
	if obj == 0 || obj < g.fromStart || obj >= g.fromEnd {
		return obj // null, constant, or already in to-space
	}
	if g.isForwarded(obj) {
		return g.heap.Mark(obj)
	}
	size := g.heap.Size(obj)
	to := *free
	g.heap.Copy(to, obj, size)
	g.heap.SetMark(to, MarkUnset)
	g.heap.SetMark(obj, to)
	g.stats.BytesMoved += size
	*free += size
	return to
}

func (g *SemispaceGC) Collect() {
	g.stats.Cycles++
	free := g.toStart
	scan := g.toStart

	g.walker.ProcessRoots(func(slot int) {
		g.walker.SetSlot(slot, g.evacuate(g.walker.Slot(slot), &free))
	})

	for scan < free {
		size := g.heap.Size(scan)
		tag := g.heap.Tag(scan)
		if g.ti.HasSpecialType(tag) {
			if g.ti.IsString(tag) {
				g.heap.SetField(scan, 0, g.evacuate(g.heap.Field(scan, 0), &free))
			}
		} else {
			n := g.heap.FieldCount(scan)
			for i := 0; i < n; i++ {
				g.heap.SetField(scan, i, g.evacuate(g.heap.Field(scan, i), &free))
			}
		}
		scan += size
	}

	g.walker.FixDerivedPointers()
	g.flip(free)
}

// flip swaps the spaces and rebuilds the allocator over the survivor
// prefix of the new active half.
func (g *SemispaceGC) flip(free Address) {
	g.fromStart, g.toStart = g.toStart, g.fromStart
	g.fromEnd, g.toEnd = g.toEnd, g.fromEnd

	// survivors keep their headers; only the tail becomes free space
	g.alloc = NewNextFitAllocatorAt(g.heap, g.fromStart, g.fromEnd, free)
	g.alloc.Allocated = free - g.fromStart
}
