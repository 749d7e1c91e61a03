package klass

import (
	"testing"

	"coolc/internal/lexer"
	"coolc/internal/parser"
	"coolc/internal/semant"
)

func build(t *testing.T, src string, wordSize int) *Builder {
	t.Helper()
	p := parser.New(lexer.NewFromSource("test.cl", src))
	prog := p.Parse()
	if prog == nil {
		t.Fatalf("parse failed: %s", p.ErrorMsg())
	}
	root, errs := semant.Analyze(prog)
	if root == nil {
		t.Fatalf("semantic errors: %v", errs)
	}
	return NewBuilder(root, wordSize)
}

const hierarchy = `
class A { a1 : Int; fa() : Int { a1 }; };
class B inherits A { b1 : Bool; fb() : Int { 0 }; fa() : Int { 1 }; };
class C inherits A { };
class D inherits B { };
class Main { main() : Int { 0 }; };
`

func TestTagsAreDFSIntervals(t *testing.T) {
	b := build(t, hierarchy, 4)

	if b.Klass("Object").Tag != 0 {
		t.Fatalf("Object tag: %d", b.Klass("Object").Tag)
	}

	// the tag set of every class's subtree equals [tag, child_max_tag]
	for _, k := range b.ByTag() {
		inInterval := map[int]bool{}
		for tag := k.Tag; tag <= k.ChildMaxTag; tag++ {
			inInterval[tag] = true
		}
		for _, other := range b.ByTag() {
			descendant := false
			for cur := other; cur != nil; cur = cur.Parent {
				if cur == k {
					descendant = true
					break
				}
			}
			if descendant != inInterval[other.Tag] {
				t.Errorf("class %s vs subtree of %s: descendant=%v interval=%v",
					other.Name, k.Name, descendant, inInterval[other.Tag])
			}
		}
	}
}

func TestByTagOrdering(t *testing.T) {
	b := build(t, hierarchy, 4)
	for i, k := range b.ByTag() {
		if k.Tag != i {
			t.Errorf("ByTag[%d] has tag %d", i, k.Tag)
		}
	}
}

func TestFieldsAreParentFirst(t *testing.T) {
	b := build(t, hierarchy, 4)
	d := b.Klass("D")
	var names []string
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	if len(names) != 2 || names[0] != "a1" || names[1] != "b1" {
		t.Fatalf("D fields: %v", names)
	}
}

func TestMethodIndexStability(t *testing.T) {
	b := build(t, hierarchy, 4)
	a := b.Klass("A")
	for _, desc := range []string{"B", "C", "D"} {
		k := b.Klass(desc)
		for _, m := range a.Methods {
			name := m.Feature.Name
			if a.MethodIndex(name) != k.MethodIndex(name) {
				t.Errorf("index of %s differs between A and %s", name, desc)
			}
		}
	}
}

func TestOverrideReplacesInPlace(t *testing.T) {
	b := build(t, hierarchy, 4)
	a, bb := b.Klass("A"), b.Klass("B")
	i := a.MethodIndex("fa")
	if bb.Methods[i].Owner != "B" {
		t.Errorf("override owner: %s", bb.Methods[i].Owner)
	}
	if a.Methods[i].Owner != "A" {
		t.Errorf("parent table mutated by child override")
	}
	if bb.MethodFullName("fa") != "B.fa" {
		t.Errorf("full name: %s", bb.MethodFullName("fa"))
	}
}

func TestConformanceByInterval(t *testing.T) {
	b := build(t, hierarchy, 4)
	cases := []struct {
		a, b string
		want bool
	}{
		{"D", "B", true}, {"D", "A", true}, {"B", "A", true},
		{"C", "A", true}, {"C", "B", false}, {"A", "D", false},
		{"D", "Object", true}, {"Int", "Object", true}, {"Int", "A", false},
	}
	for _, c := range cases {
		if got := b.Conforms(c.a, c.b); got != c.want {
			t.Errorf("Conforms(%s, %s) = %v", c.a, c.b, got)
		}
	}
	// transitivity over every triple
	all := b.ByTag()
	for _, x := range all {
		for _, y := range all {
			for _, z := range all {
				if b.Conforms(x.Name, y.Name) && b.Conforms(y.Name, z.Name) &&
					!b.Conforms(x.Name, z.Name) {
					t.Fatalf("transitivity broken: %s %s %s", x.Name, y.Name, z.Name)
				}
			}
		}
	}
}

func TestLUB(t *testing.T) {
	b := build(t, hierarchy, 4)
	cases := []struct {
		a, b, want string
	}{
		{"B", "C", "A"}, {"D", "B", "B"}, {"D", "C", "A"},
		{"A", "Int", "Object"}, {"D", "D", "D"},
	}
	for _, c := range cases {
		if got := b.LUB(c.a, c.b).Name; got != c.want {
			t.Errorf("LUB(%s, %s) = %s want %s", c.a, c.b, got, c.want)
		}
	}
}

func TestSizesAndOffsets(t *testing.T) {
	b := build(t, hierarchy, 4)
	d := b.Klass("D")
	if d.HeaderSize() != 16 {
		t.Errorf("header: %d", d.HeaderSize())
	}
	if d.SizeInBytes() != 16+2*4 {
		t.Errorf("size: %d", d.SizeInBytes())
	}
	if d.FieldOffset(0) != 16 || d.FieldOffset(1) != 20 {
		t.Errorf("offsets: %d %d", d.FieldOffset(0), d.FieldOffset(1))
	}

	b8 := build(t, hierarchy, 8)
	if got := b8.Klass("D").SizeInBytes(); got != 32+2*8 {
		t.Errorf("64-bit size: %d", got)
	}
}

func TestValueClassLayouts(t *testing.T) {
	b := build(t, hierarchy, 4)
	i := b.Klass("Int")
	if len(i.Fields) != 1 || i.Fields[0].Type != PrimIntType {
		t.Fatalf("Int fields: %v", i.Fields)
	}
	s := b.Klass("String")
	if len(s.Fields) != 2 || s.Fields[0].Type != "Int" || s.Fields[1].Type != PrimBytesType {
		t.Fatalf("String fields: %v", s.Fields)
	}
	if !IsPointerField(s.Fields[0]) || IsPointerField(s.Fields[1]) {
		t.Error("pointer classification")
	}
}

// Case dispatch by interval containment must agree with a naive linear
// search through the ancestor chain.
func TestCaseDispatchOracle(t *testing.T) {
	b := build(t, hierarchy, 4)
	branchTypes := []string{"A", "B", "Object"}
	for _, dynamic := range b.ByTag() {
		// interval pick: most specific branch whose interval holds the tag
		pick := ""
		best := -1
		for _, bt := range branchTypes {
			k := b.Klass(bt)
			if k.Tag <= dynamic.Tag && dynamic.Tag <= k.ChildMaxTag && k.Tag > best {
				best = k.Tag
				pick = bt
			}
		}
		// oracle: walk the ancestor chain, first branch type found wins
		oracle := ""
	chain:
		for cur := dynamic; cur != nil; cur = cur.Parent {
			for _, bt := range branchTypes {
				if bt == cur.Name {
					oracle = bt
					break chain
				}
			}
		}
		if pick != oracle {
			t.Errorf("dynamic %s: interval pick %q, oracle %q", dynamic.Name, pick, oracle)
		}
	}
}
