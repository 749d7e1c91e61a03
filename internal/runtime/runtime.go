package runtime

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Runtime owns the mutator heap, the selected collector, the stack
// walker and the rodata area; its methods are the linker-visible entry
// points of generated code.
type Runtime struct {
	Flags  *Flags
	Heap   *Heap
	GC     Collector
	Walker *StackWalker
	Types  TypeInfo
	Stats  *Stats

	// rodata bump position for constants below RegionStart
	rodataPos Address

	// class metadata mirrored from the data layer
	classNames map[int64]string // tag -> name
	dispTabs   map[int64]int64  // tag -> disp tab pseudo address

	In  io.Reader
	Out io.Writer
	in  *bufio.Reader

	aborted string
}

func (r *Runtime) reader() *bufio.Reader {
	if r.in == nil {
		r.in = bufio.NewReader(r.In)
	}
	return r.in
}

// NewRuntime wires the collector selected by the flags; it is what
// _init_runtime does in a generated program.
func NewRuntime(f *Flags, ti TypeInfo) *Runtime {
	heapSize := RegionStart + f.MaxHeapSize
	h := NewHeap(heapSize)
	w := NewStackWalker(4096)
	stats := &Stats{}

	var gc Collector
	switch f.GCAlgo {
	case ZeroGCAlgo:
		gc = NewZeroGC(h)
	case ThreadedMarkCompactAlgo:
		gc = NewThreadedMarkCompactGC(h, w, ti, stats)
	case CompressorAlgo:
		gc = NewCompressorGC(h, w, ti, stats)
	case SemispaceCopyingAlgo:
		gc = NewSemispaceGC(h, w, ti, stats)
	default:
		gc = NewMarkSweepGC(h, w, ti, stats)
	}

	r := &Runtime{
		Flags:      f,
		Heap:       h,
		GC:         gc,
		Walker:     w,
		Types:      ti,
		Stats:      stats,
		rodataPos:  WordSize, // address 0 stays null
		classNames: map[int64]string{},
		dispTabs:   map[int64]int64{},
		In:         os.Stdin,
		Out:        os.Stdout,
	}
	if f.TraceStackWalker {
		w.Trace = func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	if f.PrintStackMaps {
		w.Dump(func(s string) { fmt.Fprintln(os.Stderr, s) })
	}
	return r
}

// RegisterClass mirrors one class_nameTab/class_objTab row.
func (r *Runtime) RegisterClass(tag int64, name string, dispTab int64) {
	r.classNames[tag] = name
	r.dispTabs[tag] = dispTab
}

// FinishRuntime flushes statistics; _finish_runtime of the contract.
func (r *Runtime) FinishRuntime() {
	if r.Flags.PrintGCStatistics {
		r.Stats.Report(r.GC.Allocator(), func(s string) {
			fmt.Fprintln(os.Stderr, s)
		})
	}
}

// Abort records the fatal runtime message; a generated program would
// print it and exit.
func (r *Runtime) Abort(msg string) {
	if r.aborted == "" {
		r.aborted = msg
	}
	panic(runtimeAbort{msg})
}

type runtimeAbort struct{ msg string }

// AbortMessage reports the recorded fatal error, empty if none.
func (r *Runtime) AbortMessage() string { return r.aborted }

// Run executes f, turning a runtime abort into its message.
func (r *Runtime) Run(f func()) (msg string) {
	defer func() {
		if e := recover(); e != nil {
			if a, ok := e.(runtimeAbort); ok {
				msg = a.msg
				return
			}
			panic(e)
		}
	}()
	f()
	return ""
}

// GCAlloc is the allocation entry point: bump allocate; on exhaustion
// run a full collection and retry once; abort if the heap is still
// full.
func (r *Runtime) GCAlloc(tag int64, size int64, dispTab int64) Address {
	obj := r.GC.Allocator().Alloc(size)
	if obj == 0 {
		if r.Flags.TraceGCCycles {
			fmt.Fprintf(os.Stderr, "GC cycle: allocation of %d bytes failed\n", size)
		}
		r.GC.Collect()
		obj = r.GC.Allocator().Alloc(size)
		if obj == 0 {
			r.Abort("out of memory")
		}
	}
	r.Heap.SetTag(obj, tag)
	// the size word keeps the chunk size the allocator wrote: size rounded
	// to words, plus any sub-header remainder the chunk absorbed
	r.Heap.SetDispTab(obj, dispTab)
	if r.Flags.PrintAllocatedObjects {
		fmt.Fprintf(os.Stderr, "allocated %s at %#x (%d bytes)\n", r.classNames[tag], obj, size)
	}
	return obj
}

// CaseAbort aborts a case expression with no matching branch.
func (r *Runtime) CaseAbort(tag int64) {
	r.Abort(fmt.Sprintf("No match in case statement for Class %s", r.classNames[tag]))
}

// CaseAbort2 aborts a case on void with the source position.
func (r *Runtime) CaseAbort2(file string, line int64) {
	r.Abort(fmt.Sprintf("%s:%d: Match on void in case statement.", file, line))
}

// DispatchAbort aborts a dispatch on void with the source position.
func (r *Runtime) DispatchAbort(file string, line int64) {
	r.Abort(fmt.Sprintf("%s:%d: Dispatch to void.", file, line))
}

// Equals is the runtime equality test: value comparison for the boxed
// primitive classes, identity otherwise. Returns 1 for equal.
func (r *Runtime) Equals(lhs, rhs Address) int64 {
	if lhs == rhs {
		return 1
	}
	if lhs == 0 || rhs == 0 {
		return 0
	}
	lt, rt := r.Heap.Tag(lhs), r.Heap.Tag(rhs)
	if lt != rt {
		return 0
	}
	switch {
	case lt == r.Types.IntTag || lt == r.Types.BoolTag:
		if r.Heap.Field(lhs, 0) == r.Heap.Field(rhs, 0) {
			return 1
		}
	case lt == r.Types.StringTag:
		if r.StringValue(lhs) == r.StringValue(rhs) {
			return 1
		}
	}
	return 0
}

// ---------------------------------------------------------------------
// Constant emission into the rodata area

// EmitIntConstant lays out a boxed Int below the collected region,
// preceded by the -1 constant mark.
func (r *Runtime) EmitIntConstant(v int64) Address {
	obj := r.rodataAlloc(HeaderSize + WordSize)
	r.Heap.SetTag(obj, r.Types.IntTag)
	r.Heap.SetSize(obj, HeaderSize+WordSize)
	r.Heap.SetDispTab(obj, r.dispTabs[r.Types.IntTag])
	r.Heap.SetField(obj, 0, v)
	return obj
}

func (r *Runtime) EmitBoolConstant(v bool) Address {
	obj := r.rodataAlloc(HeaderSize + WordSize)
	r.Heap.SetTag(obj, r.Types.BoolTag)
	r.Heap.SetSize(obj, HeaderSize+WordSize)
	r.Heap.SetDispTab(obj, r.dispTabs[r.Types.BoolTag])
	if v {
		r.Heap.SetField(obj, 0, 1)
	}
	return obj
}

func (r *Runtime) EmitStringConstant(s string) Address {
	length := r.EmitIntConstant(int64(len(s)))
	payload := int64(len(s) + 1)
	payload = (payload + WordSize - 1) / WordSize * WordSize
	size := HeaderSize + WordSize + payload
	obj := r.rodataAlloc(size)
	r.Heap.SetTag(obj, r.Types.StringTag)
	r.Heap.SetSize(obj, size)
	r.Heap.SetDispTab(obj, r.dispTabs[r.Types.StringTag])
	r.Heap.SetField(obj, 0, length)
	copy(r.Heap.Bytes(obj+HeaderSize+WordSize, int64(len(s))), s)
	return obj
}

func (r *Runtime) rodataAlloc(size int64) Address {
	// the mark word sits immediately before the descriptor
	r.Heap.SetWord(r.rodataPos, ConstantMark)
	obj := r.rodataPos + WordSize
	r.rodataPos = obj + size
	if r.rodataPos >= RegionStart {
		r.Abort("out of rodata space")
	}
	return obj
}

// ---------------------------------------------------------------------
// Primitive methods

// StringValue reads a string object's bytes.
func (r *Runtime) StringValue(obj Address) string {
	lengthObj := Address(r.Heap.Field(obj, 0))
	n := r.Heap.Field(lengthObj, 0)
	return string(r.Heap.Bytes(obj+HeaderSize+WordSize, n))
}

// ObjectCopy is Object.copy: a shallow clone on the collected heap.
func (r *Runtime) ObjectCopy(obj Address) Address {
	size := r.Heap.Size(obj)
	clone := r.GCAlloc(r.Heap.Tag(obj), size, r.Heap.DispTab(obj))
	r.Heap.Copy(clone+HeaderSize, obj+HeaderSize, size-HeaderSize)
	return clone
}

// ObjectAbort is Object.abort.
func (r *Runtime) ObjectAbort(obj Address) {
	r.Abort(fmt.Sprintf("Abort called from class %s", r.classNames[r.Heap.Tag(obj)]))
}

// ObjectTypeName is Object.type_name.
func (r *Runtime) ObjectTypeName(obj Address) Address {
	return r.EmitStringConstant(r.classNames[r.Heap.Tag(obj)])
}

// StringLength is String.length.
func (r *Runtime) StringLength(obj Address) Address {
	return Address(r.Heap.Field(obj, 0))
}

// StringConcat is String.concat.
func (r *Runtime) StringConcat(obj, other Address) Address {
	return r.EmitStringConstant(r.StringValue(obj) + r.StringValue(other))
}

// StringSubstr is String.substr(i, l); out-of-range aborts.
func (r *Runtime) StringSubstr(obj, iObj, lObj Address) Address {
	s := r.StringValue(obj)
	i := r.Heap.Field(iObj, 0)
	l := r.Heap.Field(lObj, 0)
	if i < 0 || l < 0 || i+l > int64(len(s)) {
		r.Abort("String.substr out of range")
	}
	return r.EmitStringConstant(s[i : i+l])
}

// IOOutString is IO.out_string.
func (r *Runtime) IOOutString(self, s Address) Address {
	io.WriteString(r.Out, r.StringValue(s))
	return self
}

// IOOutInt is IO.out_int.
func (r *Runtime) IOOutInt(self, v Address) Address {
	fmt.Fprintf(r.Out, "%d", r.Heap.Field(v, 0))
	return self
}

// IOInString is IO.in_string: one line without the newline.
func (r *Runtime) IOInString(self Address) Address {
	line, _ := r.reader().ReadString('\n')
	return r.EmitStringConstant(strings.TrimSuffix(line, "\n"))
}

// IOInInt is IO.in_int.
func (r *Runtime) IOInInt(self Address) Address {
	line, _ := r.reader().ReadString('\n')
	n, _ := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	return r.EmitIntConstant(n)
}
