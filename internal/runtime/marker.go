package runtime

// Marker is a single-pass tri-color marker with an explicit gray FIFO.
// Marking is not re-entrant: one traversal owns the queue.
type Marker struct {
	heap  *Heap
	alloc *NextFitAllocator
	ti    TypeInfo
	queue []Address

	Trace func(format string, args ...interface{})
}

func NewMarker(h *Heap, a *NextFitAllocator, ti TypeInfo) *Marker {
	return &Marker{heap: h, alloc: a, ti: ti}
}

// MarkFromRoots marks everything reachable from the walker's slots.
func (m *Marker) MarkFromRoots(w *StackWalker) {
	w.ProcessRoots(func(slot int) {
		m.MarkRoot(Address(w.Slot(slot)))
	})
	m.drain()
}

// MarkRoot grays one object; constants outside the collected region are
// left alone.
func (m *Marker) MarkRoot(obj Address) {
	if obj == 0 || !m.alloc.IsHeapAddr(obj) {
		return
	}
	if m.heap.IsMarked(obj) {
		return
	}
	m.heap.SetMark(obj, MarkSet)
	if m.Trace != nil {
		m.Trace("mark %#x tag %d", obj, m.heap.Tag(obj))
	}
	m.queue = append(m.queue, obj)
}

func (m *Marker) drain() {
	for len(m.queue) > 0 {
		obj := m.queue[0]
		m.queue = m.queue[1:]
		m.scan(obj)
	}
}

// scan grays the children. Value-class payloads are raw words; a string
// traces only its size reference.
func (m *Marker) scan(obj Address) {
	tag := m.heap.Tag(obj)
	if m.ti.HasSpecialType(tag) {
		if m.ti.IsString(tag) {
			m.MarkRoot(Address(m.heap.Field(obj, 0)))
		}
		return
	}
	n := m.heap.FieldCount(obj)
	for i := 0; i < n; i++ {
		m.MarkRoot(Address(m.heap.Field(obj, i)))
	}
}
