package klass

import (
	"coolc/internal/ast"
	"coolc/internal/semant"
)

// Synthetic field types for the value-class payloads. They occupy one
// slot each but are not GC-managed pointers.
const (
	PrimIntType   = "_prim_int"
	PrimBytesType = "_prim_bytes"
)

// HeaderWords is the object header size: mark, tag, size, dispatch table.
const HeaderWords = 4

// Field is one payload slot of a class layout.
type Field struct {
	Name string
	Type string
}

// Method is one dispatch-table entry: the selector together with the
// class whose definition fills the slot.
type Method struct {
	Owner   string
	Feature *ast.Feature
}

// Klass is the per-class descriptor shared by all backends.
type Klass struct {
	Name        string
	Parent      *Klass
	Ast         *ast.Class
	Tag         int
	ChildMaxTag int
	Fields      []Field
	Methods     []Method

	wordSize int
}

// Tag and ChildMaxTag delimit the closed interval [Tag, ChildMaxTag]
// holding exactly the tags of this class and its descendants.

func (k *Klass) WordSize() int { return k.wordSize }

// HeaderSize returns the header size in bytes.
func (k *Klass) HeaderSize() int { return HeaderWords * k.wordSize }

// SizeInBytes is the instance size: header plus one word per field.
func (k *Klass) SizeInBytes() int {
	return k.HeaderSize() + len(k.Fields)*k.wordSize
}

// FieldOffset returns the byte offset of field i from the object base.
func (k *Klass) FieldOffset(i int) int {
	return k.HeaderSize() + i*k.wordSize
}

// FieldIndex returns the slot of a named field, -1 if absent.
func (k *Klass) FieldIndex(name string) int {
	for i, f := range k.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// MethodIndex returns the dispatch-table slot of a selector. The index is
// stable across inheritance: a parent and all its descendants agree.
func (k *Klass) MethodIndex(name string) int {
	for i, m := range k.Methods {
		if m.Feature.Name == name {
			return i
		}
	}
	return -1
}

// MethodFullName is the qualified symbol of the slot's current filler.
func (k *Klass) MethodFullName(name string) string {
	i := k.MethodIndex(name)
	if i < 0 {
		return ""
	}
	return k.Methods[i].Owner + "." + name
}

// Builder computes the descriptor table for a class tree.
type Builder struct {
	root     *semant.ClassNode
	wordSize int

	klasses map[string]*Klass
	byTag   []*Klass
}

// NewBuilder flattens the tree top-down and assigns DFS tags, numbering
// the root 0.
func NewBuilder(root *semant.ClassNode, wordSize int) *Builder {
	b := &Builder{root: root, wordSize: wordSize, klasses: map[string]*Klass{}}
	b.build(root, nil, 0)
	b.byTag = make([]*Klass, len(b.klasses))
	for _, k := range b.klasses {
		b.byTag[k.Tag] = k
	}
	return b
}

func (b *Builder) build(node *semant.ClassNode, parent *Klass, tag int) int {
	c := node.Class
	k := &Klass{Name: c.Name, Parent: parent, Ast: c, Tag: tag, wordSize: b.wordSize}
	if parent != nil {
		k.Fields = append(k.Fields, parent.Fields...)
		k.Methods = append(k.Methods, parent.Methods...)
	}
	b.divideFeatures(k, c)
	b.klasses[c.Name] = k

	childMax := tag
	for _, ch := range node.Children {
		childMax = b.build(ch, k, childMax+1)
	}
	k.ChildMaxTag = childMax
	return childMax
}

// divideFeatures appends this class's fields and merges its methods into
// the copied parent tables; an override replaces the entry at the
// inherited index.
func (b *Builder) divideFeatures(k *Klass, c *ast.Class) {
	switch c.Name {
	case ast.IntClass, ast.BoolClass:
		k.Fields = append(k.Fields, Field{Name: "_val", Type: PrimIntType})
	case ast.StringClass:
		k.Fields = append(k.Fields,
			Field{Name: "_size", Type: ast.IntClass},
			Field{Name: "_string", Type: PrimBytesType})
	}
	for _, f := range c.Features {
		switch f.Kind {
		case ast.AttrFeature:
			k.Fields = append(k.Fields, Field{Name: f.Name, Type: f.DeclType})
		case ast.MethodFeature:
			if i := k.MethodIndex(f.Name); i >= 0 {
				k.Methods[i] = Method{Owner: c.Name, Feature: f}
			} else {
				k.Methods = append(k.Methods, Method{Owner: c.Name, Feature: f})
			}
		}
	}
}

// Klass returns the descriptor for a class name.
func (b *Builder) Klass(name string) *Klass { return b.klasses[name] }

// ByTag returns descriptors ordered by tag.
func (b *Builder) ByTag() []*Klass { return b.byTag }

// Root returns the Object descriptor.
func (b *Builder) Root() *Klass { return b.byTag[0] }

// Conforms reports a <= b using the tag intervals.
func (b *Builder) Conforms(a, bb string) bool {
	ka, kb := b.klasses[a], b.klasses[bb]
	return kb.Tag <= ka.Tag && ka.Tag <= kb.ChildMaxTag
}

// LUB returns the least upper bound of two classes.
func (b *Builder) LUB(x, y string) *Klass {
	kx, ky := b.klasses[x], b.klasses[y]
	for !(kx.Tag <= ky.Tag && ky.Tag <= kx.ChildMaxTag) {
		kx = kx.Parent
	}
	return kx
}

// IsPointerField reports whether a field slot holds a GC-managed
// reference.
func IsPointerField(f Field) bool {
	return f.Type != PrimIntType && f.Type != PrimBytesType
}
