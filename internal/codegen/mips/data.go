package mips

import (
	"coolc/internal/ast"
	"coolc/internal/codegen/data"
	"coolc/internal/klass"
)

// Object header offsets on the 32-bit target.
const (
	MarkOffset    = 0
	TagOffset     = 1 * WordSize
	SizeOffset    = 2 * WordSize
	DispTabOffset = 3 * WordSize
	FieldOffset   = 4 * WordSize
)

// emitData renders every memoized descriptor into the data section:
// constants (each preceded by the -1 mark word), prototypes, dispatch
// tables and the two class tables.
func (cg *CodeGen) emitData() {
	a := cg.a
	d := cg.d

	// tables first: prototypes intern their default-value constants,
	// so the constant pools must be rendered after them
	for _, k := range cg.kb.ByTag() {
		cg.emitDispTab(k)
		cg.emitPrototype(k)
	}

	a.DataGlobal(data.ClassNameTabLabel)
	a.DataLabel(data.ClassNameTabLabel)
	for _, k := range cg.kb.ByTag() {
		a.WordLabel(cg.d.String(k.Name).Label)
	}

	a.DataGlobal(data.ClassObjTabLabel)
	a.DataLabel(data.ClassObjTabLabel)
	for _, k := range cg.kb.ByTag() {
		a.WordLabel(data.PrototypeLabel(k.Name))
		a.WordLabel(data.InitLabel(k.Name))
	}

	intKlass := cg.kb.Klass(ast.IntClass)
	boolKlass := cg.kb.Klass(ast.BoolClass)
	strKlass := cg.kb.Klass(ast.StringClass)

	for _, c := range d.Ints() {
		a.Word(data.ConstantMark)
		a.DataLabel(c.Label)
		a.Word(0) // mark
		a.Word(intKlass.Tag)
		a.Word(intKlass.SizeInBytes())
		a.WordLabel(data.DispTabLabel(ast.IntClass))
		a.Word(int(c.Value))
	}
	for _, c := range d.Bools() {
		a.Word(data.ConstantMark)
		a.DataLabel(c.Label)
		a.Word(0)
		a.Word(boolKlass.Tag)
		a.Word(boolKlass.SizeInBytes())
		a.WordLabel(data.DispTabLabel(ast.BoolClass))
		if c.Value {
			a.Word(1)
		} else {
			a.Word(0)
		}
	}
	for _, c := range d.Strings() {
		size := strKlass.HeaderSize() + WordSize + align(len(c.Value)+1)
		a.Word(data.ConstantMark)
		a.DataLabel(c.Label)
		a.Word(0)
		a.Word(strKlass.Tag)
		a.Word(size)
		a.WordLabel(data.DispTabLabel(ast.StringClass))
		a.WordLabel(c.Length.Label)
		if len(c.Value) > 0 {
			a.Ascii(c.Value)
		}
		a.ByteVal(0)
		a.Align(2)
	}
}

func align(n int) int {
	return (n + WordSize - 1) / WordSize * WordSize
}

func (cg *CodeGen) emitDispTab(k *klass.Klass) {
	a := cg.a
	a.DataLabel(data.DispTabLabel(k.Name))
	for _, m := range k.Methods {
		a.WordLabel(data.MethodLabel(m.Owner, m.Feature.Name))
	}
}

func (cg *CodeGen) emitPrototype(k *klass.Klass) {
	a := cg.a
	a.DataGlobal(data.PrototypeLabel(k.Name))
	a.Word(data.ConstantMark)
	a.DataLabel(data.PrototypeLabel(k.Name))
	a.Word(0)
	a.Word(k.Tag)
	a.Word(k.SizeInBytes())
	a.WordLabel(data.DispTabLabel(k.Name))
	for _, f := range k.Fields {
		switch f.Type {
		case klass.PrimIntType, klass.PrimBytesType:
			a.Word(0)
		case ast.IntClass:
			a.WordLabel(cg.d.Int(0).Label)
		case ast.BoolClass:
			a.WordLabel(cg.d.Bool(false).Label)
		case ast.StringClass:
			a.WordLabel(cg.d.String("").Label)
		default:
			a.Word(0)
		}
	}
}
