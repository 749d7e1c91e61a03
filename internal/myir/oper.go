package myir

import "fmt"

// OperandType is the value type of an operand.
type OperandType int

const (
	Int8 OperandType = iota
	Int32
	UInt32
	Int64
	UInt64
	Pointer
	Structure
	Void
)

func (t OperandType) String() string {
	return [...]string{"int8", "int32", "uint32", "int64", "uint64", "ptr", "struct", "void"}[t]
}

// OperandKind discriminates the operand variants.
type OperandKind int

const (
	ConstantKind OperandKind = iota
	ValueKind
	GlobalVarKind
	GlobalConstKind
	FuncKind
)

// PrimKind marks operands holding boxed value-class objects; the
// unboxing pass keys off it.
type PrimKind int

const (
	NoPrim PrimKind = iota
	PrimInt
	PrimBool
)

// GlobalInit is one word of a global's initializer: either an immediate
// or the address of another symbol.
type GlobalInit struct {
	Value int64
	Ref   *Operand
}

// Operand is the IR value sum type. Every operand carries a stable id
// for bitset lookups during passes and symmetric use/def back-links.
type Operand struct {
	id   int
	Kind OperandKind
	Type OperandType
	Name string
	Prim PrimKind

	// constants
	Value int64

	// globals: initializer words; strings carry raw bytes. BaseSkip is
	// the number of leading words (the constant mark) before the object
	// header that symbol references must skip.
	Inits    []GlobalInit
	Bytes    []byte
	BaseSkip int

	uses []*Instruction
	defs []*Instruction
}

func (o *Operand) ID() int               { return o.id }
func (o *Operand) Uses() []*Instruction  { return o.uses }
func (o *Operand) Defs() []*Instruction  { return o.defs }

func (o *Operand) usedBy(i *Instruction)  { o.uses = append(o.uses, i) }
func (o *Operand) defedBy(i *Instruction) { o.defs = append(o.defs, i) }

func (o *Operand) dropUse(i *Instruction)  { o.uses = dropInst(o.uses, i) }
func (o *Operand) dropDef(i *Instruction)  { o.defs = dropInst(o.defs, i) }

func dropInst(s []*Instruction, i *Instruction) []*Instruction {
	for j, x := range s {
		if x == i {
			return append(s[:j], s[j+1:]...)
		}
	}
	return s
}

func (o *Operand) String() string {
	switch o.Kind {
	case ConstantKind:
		return fmt.Sprintf("%d", o.Value)
	case ValueKind:
		if o.Name != "" {
			return "%" + o.Name
		}
		return fmt.Sprintf("%%v%d", o.id)
	default:
		return "@" + o.Name
	}
}
