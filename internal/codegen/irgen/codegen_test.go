package irgen

import (
	"strings"
	"testing"

	"coolc/internal/codegen/data"
	"coolc/internal/klass"
	"coolc/internal/lexer"
	"coolc/internal/myir"
	"coolc/internal/myir/pass"
	"coolc/internal/parser"
	"coolc/internal/semant"
)

func lower(t *testing.T, src string) (*myir.Module, *klass.Builder) {
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
	kb := klass.NewBuilder(root, WordSize)
	cg := New(kb, data.New(kb))
	return cg.Generate(), kb
}

func optimize(m *myir.Module) {
	myir.ConstructSSA(m)
	pm := pass.NewManager(m)
	pm.Add(pass.DIE{})
	pm.Add(pass.NCE{AllocFunc: GCAllocName})
	pm.Add(pass.Unboxing{FieldOffset: FieldOffset, InitSuffix: "_init"})
	pm.Add(pass.DIE{})
	pm.Run()
}

const minimal = "class A { }; class Main inherits IO { main() : Int { 42 }; };"

func TestRequiredSymbols(t *testing.T) {
	m, _ := lower(t, minimal)
	for _, sym := range []string{"Main_init", "Main.main", "main", "Object_init", "A_init"} {
		if m.GetFunction(sym) == nil {
			t.Errorf("missing function %s", sym)
		}
	}
	for _, sym := range []string{"class_nameTab", "class_objTab", "Main_protObj", "Main_dispTab"} {
		if m.GetConstant(sym) == nil {
			t.Errorf("missing constant %s", sym)
		}
	}
}

func TestClassObjTabPairsPrototypeAndInit(t *testing.T) {
	m, kb := lower(t, minimal)
	objTab := m.GetConstant("class_objTab")
	if len(objTab.Inits) != 2*len(kb.ByTag()) {
		t.Fatalf("objTab has %d words for %d classes", len(objTab.Inits), len(kb.ByTag()))
	}
	for i, k := range kb.ByTag() {
		proto := objTab.Inits[2*i].Ref
		init := objTab.Inits[2*i+1].Ref
		if proto == nil || proto.Name != k.Name+"_protObj" {
			t.Errorf("tag %d prototype: %v", i, proto)
		}
		if init == nil || init.Name != k.Name+"_init" {
			t.Errorf("tag %d init: %v", i, init)
		}
	}
}

func TestPrototypeHeader(t *testing.T) {
	m, kb := lower(t, minimal)
	proto := m.GetConstant("Main_protObj")
	k := kb.Klass("Main")
	// [-1 mark][mark][tag][size][dispTab]...
	if proto.Inits[0].Value != data.ConstantMark {
		t.Errorf("missing constant mark word")
	}
	if proto.Inits[2].Value != int64(k.Tag) {
		t.Errorf("tag word: %d want %d", proto.Inits[2].Value, k.Tag)
	}
	if proto.Inits[3].Value != int64(k.SizeInBytes()) {
		t.Errorf("size word: %d want %d", proto.Inits[3].Value, k.SizeInBytes())
	}
	if proto.Inits[4].Ref == nil || proto.Inits[4].Ref.Name != "Main_dispTab" {
		t.Errorf("dispatch table ref: %v", proto.Inits[4].Ref)
	}
}

func TestDispatchLowering(t *testing.T) {
	m, _ := lower(t, `class A { f() : Int { 1 }; };
		class Main { a : A <- new A; main() : Int { a.f() }; };`)
	f := m.GetFunction("Main.main")
	loads, indirects := 0, 0
	for _, b := range f.Blocks() {
		for _, inst := range b.Insts() {
			if inst.Kind == myir.LoadInst {
				loads++
			}
			if inst.Kind == myir.CallInst && inst.Uses()[0].Kind != myir.FuncKind {
				indirects++
			}
		}
	}
	if loads == 0 {
		t.Error("virtual dispatch must load through the dispatch table")
	}
	if indirects == 0 {
		t.Error("virtual dispatch must call indirectly")
	}
}

func TestStaticDispatchIsDirect(t *testing.T) {
	m, _ := lower(t, `class A { f() : Int { 1 }; }; class B inherits A { };
		class Main { main() : Int { (new B)@A.f() }; };`)
	f := m.GetFunction("Main.main")
	found := false
	for _, b := range f.Blocks() {
		for _, inst := range b.Insts() {
			if inst.Kind == myir.CallInst && inst.Uses()[0].Name == "A.f" {
				found = true
			}
		}
	}
	if !found {
		t.Error("static dispatch must call A.f directly")
	}
}

// Seed scenario: after optimization, the add feeding only an unused
// let binding must be gone.
func TestDeadArithmeticEliminated(t *testing.T) {
	m, _ := lower(t, `class Main { main() : Int { let y : Int <- 1 + 2 in 3 }; };`)
	optimize(m)
	f := m.GetFunction("Main.main")
	for _, b := range f.Blocks() {
		for _, inst := range b.Insts() {
			if inst.Kind == myir.AddInst {
				t.Fatalf("dead add survived the pass pipeline: %s", inst)
			}
		}
	}
}

func TestNCERemovesSelfDispatchCheck(t *testing.T) {
	m, _ := lower(t, `class Main { f() : Int { 1 }; main() : Int { f() }; };`)
	myir.ConstructSSA(m)
	countChecks := func() int {
		n := 0
		f := m.GetFunction("Main.main")
		for _, b := range f.Blocks() {
			for _, inst := range b.Insts() {
				if inst.Kind == myir.EQInst {
					n++
				}
			}
		}
		return n
	}
	before := countChecks()
	if before == 0 {
		t.Fatal("expected a null check on the self dispatch before NCE")
	}
	pm := pass.NewManager(m)
	pm.Add(pass.NCE{AllocFunc: GCAllocName})
	pm.Run()
	if after := countChecks(); after != 0 {
		t.Errorf("the receiver is self: its null check must fold (%d left)", after)
	}
}

func TestEmitProducesLLVMText(t *testing.T) {
	m, _ := lower(t, minimal)
	myir.ConstructSSA(m)
	text := NewEmitter(m).Emit()
	for _, want := range []string{
		"define", "@main", "@Main_init", "class_nameTab", "call",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("emitted module lacks %q", want)
		}
	}
	// runtime entry points stay external declarations
	if !strings.Contains(text, "declare") {
		t.Error("runtime declarations missing")
	}
}

func TestSafepointsRecorded(t *testing.T) {
	m, _ := lower(t, minimal)
	f := m.GetFunction("main")
	if len(f.Safepoints) == 0 {
		t.Fatal("the entry function calls the runtime; safepoints expected")
	}
	for _, sp := range f.Safepoints {
		if sp.Call == nil || sp.Call.Kind != myir.CallInst {
			t.Errorf("safepoint without a call: %+v", sp)
		}
	}
}
