// Package data memoizes the immutable descriptors shared by all
// backends: string/int/bool constants, prototypes, dispatch tables and
// the two class tables. Each key maps to exactly one descriptor; the
// backend requests lazily and emits once.
package data

import (
	"fmt"

	"coolc/internal/klass"
)

// Well-known data-section labels.
const (
	ClassNameTabLabel = "class_nameTab"
	ClassObjTabLabel  = "class_objTab"

	// ConstantMark is stored in the word reserved immediately before
	// each constant descriptor so GC can recognize constants when
	// scanning rodata.
	ConstantMark = -1
)

// IntConst is one interned Int constant descriptor.
type IntConst struct {
	Label string
	Value int64
}

// BoolConst is one of the two Bool constant descriptors.
type BoolConst struct {
	Label string
	Value bool
}

// StringConst is one interned String constant descriptor. Its length is
// itself an interned Int constant.
type StringConst struct {
	Label  string
	Value  string
	Length *IntConst
}

// Data interns constants for one compilation.
type Data struct {
	Builder *klass.Builder

	strings map[string]*StringConst
	ints    map[int64]*IntConst
	bools   [2]*BoolConst

	// insertion order, for deterministic emission
	stringOrder []*StringConst
	intOrder    []*IntConst
}

func New(b *klass.Builder) *Data {
	d := &Data{
		Builder: b,
		strings: map[string]*StringConst{},
		ints:    map[int64]*IntConst{},
	}
	d.bools[0] = &BoolConst{Label: "bool_const0", Value: false}
	d.bools[1] = &BoolConst{Label: "bool_const1", Value: true}
	// class names are needed by class_nameTab and Object.type_name
	for _, k := range b.ByTag() {
		d.String(k.Name)
	}
	return d
}

// Int returns the unique descriptor for an integer value.
func (d *Data) Int(v int64) *IntConst {
	if c, ok := d.ints[v]; ok {
		return c
	}
	c := &IntConst{Label: fmt.Sprintf("int_const%d", len(d.ints)), Value: v}
	d.ints[v] = c
	d.intOrder = append(d.intOrder, c)
	return c
}

// Bool returns the descriptor for a boolean value.
func (d *Data) Bool(v bool) *BoolConst {
	if v {
		return d.bools[1]
	}
	return d.bools[0]
}

// String returns the unique descriptor for a string value, interning the
// length constant as a side effect.
func (d *Data) String(v string) *StringConst {
	if c, ok := d.strings[v]; ok {
		return c
	}
	c := &StringConst{
		Label:  fmt.Sprintf("str_const%d", len(d.strings)),
		Value:  v,
		Length: d.Int(int64(len(v))),
	}
	d.strings[v] = c
	d.stringOrder = append(d.stringOrder, c)
	return c
}

// Strings returns interned string constants in insertion order.
func (d *Data) Strings() []*StringConst { return d.stringOrder }

// Ints returns interned int constants in insertion order.
func (d *Data) Ints() []*IntConst { return d.intOrder }

// Bools returns the false and true descriptors.
func (d *Data) Bools() []*BoolConst { return d.bools[:] }

// Labels of the per-class emitted structures.

func PrototypeLabel(class string) string { return class + "_protObj" }
func DispTabLabel(class string) string   { return class + "_dispTab" }
func InitLabel(class string) string      { return class + "_init" }

// MethodLabel is the linker-visible name of a method body.
func MethodLabel(class, method string) string { return class + "." + method }
