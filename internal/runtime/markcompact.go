package runtime

// ThreadedMarkCompactGC is Jonkers's threading compactor: every
// reference to a live object is chained through the object's size word,
// so two sliding passes (forward then backward references) relocate the
// region without extra space.
//
// A chain element is either a heap field address or an encoded stack
// slot; the chain terminator is the original size word, which is why
// the collected region starts high enough that sizes and addresses
// cannot collide.
type ThreadedMarkCompactGC struct {
	heap   *Heap
	alloc  *NextFitAllocator
	marker *Marker
	walker *StackWalker
	ti     TypeInfo
	stats  *Stats
}

func NewThreadedMarkCompactGC(h *Heap, w *StackWalker, ti TypeInfo, stats *Stats) *ThreadedMarkCompactGC {
	a := NewNextFitAllocator(h, RegionStart, h.SizeBytes())
	return &ThreadedMarkCompactGC{
		heap:   h,
		alloc:  a,
		marker: NewMarker(h, a, ti),
		walker: w,
		ti:     ti,
		stats:  stats,
	}
}

func (g *ThreadedMarkCompactGC) Allocator() *NextFitAllocator { return g.alloc }

func (g *ThreadedMarkCompactGC) Collect() {
	g.stats.Cycles++
	g.marker.MarkFromRoots(g.walker)
	g.compact()
}

// Stack slots are encoded as negative chain links so they share the
// address space with heap field locations.
func encodeSlot(slot int) int64  { return -int64(slot) - 2 }
func isSlotRef(v int64) bool     { return v <= -2 }
func decodeSlot(v int64) int     { return int(-v - 2) }

func (g *ThreadedMarkCompactGC) isLocation(v int64) bool {
	return isSlotRef(v) || g.alloc.IsHeapAddr(v)
}

func (g *ThreadedMarkCompactGC) readLoc(loc int64) int64 {
	if isSlotRef(loc) {
		return g.walker.Slot(decodeSlot(loc))
	}
	return g.heap.Word(loc)
}

func (g *ThreadedMarkCompactGC) writeLoc(loc, v int64) {
	if isSlotRef(loc) {
		g.walker.SetSlot(decodeSlot(loc), v)
	} else {
		g.heap.SetWord(loc, v)
	}
}

// thread chains the reference at loc into the pointee's size word.
func (g *ThreadedMarkCompactGC) thread(loc int64) {
	obj := g.readLoc(loc)
	if obj == 0 || !g.alloc.IsHeapAddr(obj) {
		return // constants are not relocatable
	}
	size := g.heap.Size(obj)
	g.heap.SetSize(obj, loc)
	g.writeLoc(loc, size)
}

// update rewrites every chained reference to obj with addr and restores
// the size word.
func (g *ThreadedMarkCompactGC) update(obj Address, addr Address) {
	temp := g.heap.Size(obj)
	for g.isLocation(temp) {
		next := g.readLoc(temp)
		g.writeLoc(temp, addr)
		temp = next
	}
	g.heap.SetSize(obj, temp)
}

func (g *ThreadedMarkCompactGC) threadFields(obj Address) {
	tag := g.heap.Tag(obj)
	if g.ti.HasSpecialType(tag) {
		if g.ti.IsString(tag) {
			g.thread(FieldAddr(obj, 0))
		}
		return
	}
	n := g.heap.FieldCount(obj)
	for i := 0; i < n; i++ {
		g.thread(FieldAddr(obj, i))
	}
}

func (g *ThreadedMarkCompactGC) updateForwardReferences() {
	g.walker.ProcessRoots(func(slot int) {
		g.thread(encodeSlot(slot))
	})

	free := g.alloc.Start()
	scan := free
	end := g.alloc.End()

	for scan < end {
		size := g.heap.Size(scan)
		if g.heap.IsMarked(scan) {
			g.update(scan, free)
			size = g.heap.Size(scan)
			g.threadFields(scan)
			free += size
		}
		scan += size
	}
}

func (g *ThreadedMarkCompactGC) updateBackwardReferences() {
	free := g.alloc.Start()
	scan := free
	end := g.alloc.End()

	var last Address
	var lastSize int64
	for scan < end {
		size := g.heap.Size(scan)
		if g.heap.IsMarked(scan) {
			g.update(scan, free)
			size = g.heap.Size(scan)
			g.heap.SetMark(scan, MarkUnset)
			g.alloc.Move(scan, free)
			g.stats.BytesMoved += size
			last, lastSize = free, size
			free += size
		}
		scan += size
	}
	if tail := end - free; tail > 0 && tail < HeaderSize && last != 0 {
		// a sub-header tail cannot become a free chunk; the last moved
		// object absorbs it
		g.heap.SetSize(last, lastSize+tail)
		free = end
	}
	g.alloc.ForceAllocPos(free)
}

func (g *ThreadedMarkCompactGC) compact() {
	g.updateForwardReferences()
	g.updateBackwardReferences()
	g.walker.FixDerivedPointers()
}
