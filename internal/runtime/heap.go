package runtime

import "encoding/binary"

// Heap is the word-addressed mutator heap. Offset 0 is reserved so a
// null reference never collides with an object.
type Heap struct {
	mem []byte
}

func NewHeap(size int64) *Heap {
	size = (size + WordSize - 1) / WordSize * WordSize
	return &Heap{mem: make([]byte, size)}
}

func (h *Heap) SizeBytes() int64 { return int64(len(h.mem)) }

func (h *Heap) Word(addr Address) int64 {
	return int64(binary.LittleEndian.Uint64(h.mem[addr : addr+WordSize]))
}

func (h *Heap) SetWord(addr Address, v int64) {
	binary.LittleEndian.PutUint64(h.mem[addr:addr+WordSize], uint64(v))
}

func (h *Heap) Bytes(addr Address, n int64) []byte {
	return h.mem[addr : addr+n]
}

func (h *Heap) Copy(dst, src Address, n int64) {
	copy(h.mem[dst:dst+n], h.mem[src:src+n])
}

func (h *Heap) Zero(addr Address, n int64) {
	for i := int64(0); i < n; i++ {
		h.mem[addr+i] = 0
	}
}

// NextFitAllocator hands out chunks from a region of the heap, bump
// style; freed chunks are marked UNUSED and coalesced lazily during the
// next-fit search.
type NextFitAllocator struct {
	heap  *Heap
	start Address
	end   Address
	pos   Address

	Allocated   int64
	Freed       int64
	AllocCount  int64
}

func NewNextFitAllocator(h *Heap, start, end Address) *NextFitAllocator {
	a := &NextFitAllocator{heap: h, start: start, end: end, pos: start}
	// one UNUSED chunk spanning the whole region
	h.SetMark(start, MarkUnused)
	h.SetSize(start, end-start)
	return a
}

// NewNextFitAllocatorAt attaches to a region whose prefix up to pos is
// already populated; only the tail becomes the free chunk.
func NewNextFitAllocatorAt(h *Heap, start, end, pos Address) *NextFitAllocator {
	a := &NextFitAllocator{heap: h, start: start, end: end, pos: pos}
	if pos <= end-HeaderSize {
		h.SetMark(pos, MarkUnused)
		h.SetSize(pos, end-pos)
	} else {
		a.pos = end
	}
	return a
}

func (a *NextFitAllocator) Start() Address { return a.start }
func (a *NextFitAllocator) End() Address   { return a.end }

func (a *NextFitAllocator) IsHeapAddr(addr Address) bool {
	return addr >= a.start && addr < a.end
}

// NextObject returns the next chunk start at or after addr, skipping
// nothing: chunks are contiguous, so the caller advances by size.
func (a *NextFitAllocator) NextObject(addr Address) Address {
	return addr
}

// Free marks a chunk reusable; contents stay until reuse.
func (a *NextFitAllocator) Free(obj Address) {
	a.Freed += a.heap.Size(obj)
	a.heap.SetMark(obj, MarkUnused)
}

// Alloc carves size bytes (word aligned, at least a header) out of the
// region with a next-fit search, coalescing adjacent UNUSED chunks on
// the way. Returns 0 when the region is exhausted.
func (a *NextFitAllocator) Alloc(size int64) Address {
	size = (size + WordSize - 1) / WordSize * WordSize
	if size < HeaderSize {
		size = HeaderSize
	}
	if addr := a.searchFrom(a.pos, size); addr != 0 {
		return addr
	}
	return a.searchFrom(a.start, size)
}

func (a *NextFitAllocator) searchFrom(from Address, size int64) Address {
	scan := from
	for scan < a.end {
		chunk := a.heap.Size(scan)
		if a.heap.Mark(scan) != MarkUnused {
			scan += chunk
			continue
		}
		// coalesce the run of free chunks starting here
		free := chunk
		for scan+free < a.end && a.heap.Mark(scan+free) == MarkUnused {
			free += a.heap.Size(scan + free)
		}
		a.heap.SetSize(scan, free)
		if free < size {
			scan += free
			continue
		}
		if free-size >= HeaderSize {
			// split: the remainder stays UNUSED
			a.heap.SetMark(scan+size, MarkUnused)
			a.heap.SetSize(scan+size, free-size)
		} else {
			size = free
		}
		a.heap.Zero(scan, size)
		a.heap.SetMark(scan, MarkUnset)
		a.heap.SetSize(scan, size)
		a.pos = scan + size
		a.Allocated += size
		a.AllocCount++
		return scan
	}
	return 0
}

// ForceAllocPos resets the bump position; the compactors call it after
// sliding the live objects down. A tail too small to hold a chunk
// header cannot be represented; callers absorb it into the last object.
func (a *NextFitAllocator) ForceAllocPos(addr Address) {
	if addr <= a.end-HeaderSize {
		a.heap.SetMark(addr, MarkUnused)
		a.heap.SetSize(addr, a.end-addr)
	}
	a.pos = addr
}

// Move relocates an object; regions may overlap during compaction.
func (a *NextFitAllocator) Move(obj, to Address) {
	if obj != to {
		a.heap.Copy(to, obj, a.heap.Size(obj))
	}
}
