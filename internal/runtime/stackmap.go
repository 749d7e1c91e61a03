package runtime

import "fmt"

// PointerPair describes one GC-visible slot of a frame: the base
// pointer's slot index and, when a derived pointer was spilled with it,
// the derived slot index (-1 when absent).
type PointerPair struct {
	Base    int
	Derived int
}

// StackMapEntry describes one safepoint, keyed by return address.
type StackMapEntry struct {
	FrameSize int
	Pairs     []PointerPair
}

// Frame is one activation on the simulated mutator stack.
type Frame struct {
	RetAddr int64
	FP      int // index of the frame's first slot
}

// StackWalker iterates the recorded base/derived pairs of every frame
// at a safepoint, letting the collector update them in place. Derived
// pointers are fixed only after all base pointers moved.
type StackWalker struct {
	maps   map[int64]*StackMapEntry
	stack  []int64
	frames []Frame

	// derived fixups deferred until every base is updated
	pending []derivedFix

	Trace func(format string, args ...interface{})
}

type derivedFix struct {
	slot    int
	baseSlot int
	oldBase int64
}

func NewStackWalker(stackSlots int) *StackWalker {
	return &StackWalker{
		maps:  map[int64]*StackMapEntry{},
		stack: make([]int64, stackSlots),
	}
}

// AddEntry registers the stack map of one safepoint.
func (w *StackWalker) AddEntry(retAddr int64, e *StackMapEntry) {
	w.maps[retAddr] = e
}

// PushFrame and PopFrame follow the mutator's calls; generated code
// stores to the thread-local frame markers at every GC-triggering call.
func (w *StackWalker) PushFrame(retAddr int64, fp int) {
	w.frames = append(w.frames, Frame{RetAddr: retAddr, FP: fp})
}

func (w *StackWalker) PopFrame() {
	w.frames = w.frames[:len(w.frames)-1]
}

func (w *StackWalker) Slot(i int) int64       { return w.stack[i] }
func (w *StackWalker) SetSlot(i int, v int64) { w.stack[i] = v }

// NumSlots returns the simulated stack capacity.
func (w *StackWalker) NumSlots() int { return len(w.stack) }

// ProcessRoots applies visit to every base-pointer slot index of every
// frame and queues the matching derived slots for the post-move fixup.
func (w *StackWalker) ProcessRoots(visit func(slot int)) {
	w.pending = w.pending[:0]
	for _, f := range w.frames {
		e := w.maps[f.RetAddr]
		if e == nil {
			continue
		}
		for _, p := range e.Pairs {
			base := f.FP + p.Base
			if p.Derived >= 0 {
				w.pending = append(w.pending, derivedFix{
					slot:    f.FP + p.Derived,
					baseSlot: base,
					oldBase: w.stack[base],
				})
			}
			if w.Trace != nil {
				w.Trace("root slot %d value %#x", base, w.stack[base])
			}
			visit(base)
		}
	}
}

// FixDerivedPointers rebases every recorded derived pointer after the
// collector updated the bases.
func (w *StackWalker) FixDerivedPointers() {
	for _, d := range w.pending {
		offset := w.stack[d.slot] - d.oldBase
		w.stack[d.slot] = w.stack[d.baseSlot] + offset
		if w.Trace != nil {
			w.Trace("fix derived slot %d to %#x", d.slot, w.stack[d.slot])
		}
	}
	w.pending = w.pending[:0]
}

// Dump renders the registered maps; the PrintStackMaps runtime flag
// uses it.
func (w *StackWalker) Dump(out func(string)) {
	for ret, e := range w.maps {
		out(fmt.Sprintf("safepoint %#x frame %d pairs %v", ret, e.FrameSize, e.Pairs))
	}
}
