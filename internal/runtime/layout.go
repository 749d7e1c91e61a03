// Package runtime is the support library contract of generated code:
// object layout, garbage-collected allocation, four collectors, and the
// stack-map-driven root walker, all over a simulated word-addressed
// heap so every algorithm is testable in-process.
package runtime

// WordSize of the runtime heap.
const WordSize = 8

// Object header slots: [mark, tag, size, dispatch_table], payload after.
const (
	MarkSlot    = 0
	TagSlot     = 1
	SizeSlot    = 2
	DispTabSlot = 3
	HeaderSize  = 4 * WordSize
)

// Mark-word values. UNUSED marks freed-but-not-yet-coalesced slots.
const (
	MarkUnset  int64 = 0
	MarkSet    int64 = 0x6D61726B // canonical non-zero pattern
	MarkUnused int64 = 0x75736C73 // freed slot pattern
)

// ConstantMark sits in the word before each rodata constant.
const ConstantMark int64 = -1

// Address is a byte offset into the simulated heap. 0 is null.
type Address = int64

// Header accessors.

func (h *Heap) Mark(obj Address) int64      { return h.Word(obj + MarkSlot*WordSize) }
func (h *Heap) Tag(obj Address) int64       { return h.Word(obj + TagSlot*WordSize) }
func (h *Heap) Size(obj Address) int64      { return h.Word(obj + SizeSlot*WordSize) }
func (h *Heap) DispTab(obj Address) int64   { return h.Word(obj + DispTabSlot*WordSize) }

func (h *Heap) SetMark(obj Address, v int64)    { h.SetWord(obj+MarkSlot*WordSize, v) }
func (h *Heap) SetTag(obj Address, v int64)     { h.SetWord(obj+TagSlot*WordSize, v) }
func (h *Heap) SetSize(obj Address, v int64)    { h.SetWord(obj+SizeSlot*WordSize, v) }
func (h *Heap) SetDispTab(obj Address, v int64) { h.SetWord(obj+DispTabSlot*WordSize, v) }

func (h *Heap) IsMarked(obj Address) bool { return h.Mark(obj) == MarkSet }

// FieldCount is the number of payload words.
func (h *Heap) FieldCount(obj Address) int {
	return int((h.Size(obj) - HeaderSize) / WordSize)
}

// FieldAddr is the address of payload slot i.
func FieldAddr(obj Address, i int) Address {
	return obj + HeaderSize + Address(i)*WordSize
}

func (h *Heap) Field(obj Address, i int) int64     { return h.Word(FieldAddr(obj, i)) }
func (h *Heap) SetField(obj Address, i int, v int64) { h.SetWord(FieldAddr(obj, i), v) }

// TypeInfo tells the collector which tags need special scanning: the
// value classes carry raw payloads that must not be traced.
type TypeInfo struct {
	IntTag    int64
	BoolTag   int64
	StringTag int64
}

// HasSpecialType reports a payload the tracer must not treat as
// references.
func (t TypeInfo) HasSpecialType(tag int64) bool {
	return tag == t.IntTag || tag == t.BoolTag || tag == t.StringTag
}

// IsString reports the string layout: one size reference then raw
// bytes.
func (t TypeInfo) IsString(tag int64) bool { return tag == t.StringTag }
