package runtime

// CompressorGC is the bitmap-and-offset-table sliding compactor: a mark
// bitmap plus a per-block table of compacted addresses lets every
// forwarding address be computed instead of stored, so references are
// rewritten in one pass before the objects slide down.
type CompressorGC struct {
	heap   *Heap
	alloc  *NextFitAllocator
	marker *Marker
	walker *StackWalker
	ti     TypeInfo
	stats  *Stats

	bitmap    []bool  // one bit per heap word in the region
	blockBase []int64 // compacted address of each block's first live byte
}

// compressorBlock is the granularity of the offset table, in bytes.
const compressorBlock = 256

func NewCompressorGC(h *Heap, w *StackWalker, ti TypeInfo, stats *Stats) *CompressorGC {
	a := NewNextFitAllocator(h, RegionStart, h.SizeBytes())
	region := a.End() - a.Start()
	return &CompressorGC{
		heap:   h,
		alloc:  a,
		marker: NewMarker(h, a, ti),
		walker: w,
		ti:     ti,
		stats:  stats,
		bitmap:    make([]bool, region/WordSize),
		blockBase: make([]int64, region/compressorBlock+1),
	}
}

func (g *CompressorGC) Allocator() *NextFitAllocator { return g.alloc }

func (g *CompressorGC) Collect() {
	g.stats.Cycles++
	g.marker.MarkFromRoots(g.walker)
	g.buildBitmap()
	g.buildOffsetTable()
	g.updateReferences()
	g.slide()
	g.walker.FixDerivedPointers()
}

func (g *CompressorGC) bitIndex(addr Address) int64 {
	return (addr - g.alloc.Start()) / WordSize
}

func (g *CompressorGC) buildBitmap() {
	for i := range g.bitmap {
		g.bitmap[i] = false
	}
	scan := g.alloc.Start()
	for scan < g.alloc.End() {
		size := g.heap.Size(scan)
		if g.heap.IsMarked(scan) {
			for w := int64(0); w < size/WordSize; w++ {
				g.bitmap[g.bitIndex(scan)+w] = true
			}
		}
		scan += size
	}
}

// buildOffsetTable records, per block, the compacted address of the
// block's first byte; forwarding inside a block adds the live bytes
// preceding the object.
func (g *CompressorGC) buildOffsetTable() {
	free := g.alloc.Start()
	start := g.alloc.Start()
	for b := range g.blockBase {
		g.blockBase[b] = free
		blockStart := start + int64(b)*compressorBlock
		for w := int64(0); w < compressorBlock/WordSize; w++ {
			idx := (blockStart-start)/WordSize + w
			if idx < int64(len(g.bitmap)) && g.bitmap[idx] {
				free += WordSize
			}
		}
	}
}

// forward computes the compacted address of a live object.
func (g *CompressorGC) forward(obj Address) Address {
	if obj == 0 || !g.alloc.IsHeapAddr(obj) {
		return obj
	}
	start := g.alloc.Start()
	block := (obj - start) / compressorBlock
	addr := g.blockBase[block]
	blockStart := start + block*compressorBlock
	for w := blockStart; w < obj; w += WordSize {
		if g.bitmap[g.bitIndex(w)] {
			addr += WordSize
		}
	}
	return addr
}

func (g *CompressorGC) updateReferences() {
	g.walker.ProcessRoots(func(slot int) {
		g.walker.SetSlot(slot, g.forward(g.walker.Slot(slot)))
	})
	scan := g.alloc.Start()
	for scan < g.alloc.End() {
		size := g.heap.Size(scan)
		if g.heap.IsMarked(scan) {
			g.forwardFields(scan)
		}
		scan += size
	}
}

func (g *CompressorGC) forwardFields(obj Address) {
	tag := g.heap.Tag(obj)
	if g.ti.HasSpecialType(tag) {
		if g.ti.IsString(tag) {
			g.heap.SetField(obj, 0, g.forward(g.heap.Field(obj, 0)))
		}
		return
	}
	n := g.heap.FieldCount(obj)
	for i := 0; i < n; i++ {
		g.heap.SetField(obj, i, g.forward(g.heap.Field(obj, i)))
	}
}

func (g *CompressorGC) slide() {
	scan := g.alloc.Start()
	free := g.alloc.Start()
	var last Address
	var lastSize int64
	for scan < g.alloc.End() {
		size := g.heap.Size(scan)
		if g.heap.IsMarked(scan) {
			g.heap.SetMark(scan, MarkUnset)
			to := g.forward(scan)
			g.alloc.Move(scan, to)
			g.stats.BytesMoved += size
			last, lastSize = to, size
			free = to + size
		}
		scan += size
	}
	if tail := g.alloc.End() - free; tail > 0 && tail < HeaderSize && last != 0 {
		g.heap.SetSize(last, lastSize+tail)
		free = g.alloc.End()
	}
	g.alloc.ForceAllocPos(free)
}
