package mips

import (
	"strings"
	"testing"

	"coolc/internal/codegen/data"
	"coolc/internal/klass"
	"coolc/internal/lexer"
	"coolc/internal/parser"
	"coolc/internal/semant"
)

func generate(t *testing.T, src string) string {
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
	return New(kb, data.New(kb)).Generate()
}

const minimal = "class A { }; class Main inherits IO { main() : Int { 42 }; };"

func TestRequiredLabels(t *testing.T) {
	asm := generate(t, minimal)
	for _, label := range []string{
		"Main_init:", "Main.main:", "class_nameTab:", "class_objTab:",
		"Main_protObj:", "Main_dispTab:", "Object_init:", "A_init:",
	} {
		if !strings.Contains(asm, label) {
			t.Errorf("missing label %s", label)
		}
	}
}

func TestDataSectionShape(t *testing.T) {
	asm := generate(t, minimal)
	if !strings.Contains(asm, "\t.data\n") || !strings.Contains(asm, "\t.text\n") {
		t.Fatal("missing sections")
	}
	// the -1 mark word precedes prototypes and constants
	if !strings.Contains(asm, ".word\t-1\nMain_protObj:") {
		t.Error("prototype not preceded by the -1 word")
	}
	// prototype header: mark, tag, size, dispatch table
	idx := strings.Index(asm, "Main_protObj:")
	tail := asm[idx:]
	if !strings.Contains(tail, ".word\tMain_dispTab") {
		t.Error("prototype lacks its dispatch table pointer")
	}
}

func TestDispatchGoesThroughTable(t *testing.T) {
	asm := generate(t, `class A { f() : Int { 1 }; };
		class Main { a : A <- new A; main() : Int { a.f() }; };`)
	if !strings.Contains(asm, "jalr") {
		t.Error("virtual dispatch must jalr through the table")
	}
	if !strings.Contains(asm, "_dispatch_abort") {
		t.Error("dispatch must guard against void")
	}
}

func TestStaticDispatchIsDirect(t *testing.T) {
	asm := generate(t, `class A { f() : Int { 1 }; }; class B inherits A { };
		class Main { main() : Int { (new B)@A.f() }; };`)
	if !strings.Contains(asm, "jal\tA.f") {
		t.Error("static dispatch must jal the qualified symbol")
	}
}

func TestNewCallsAllocatorAndInit(t *testing.T) {
	asm := generate(t, `class A { }; class Main { main() : Int { let a : A <- new A in 0 }; };`)
	if !strings.Contains(asm, "jal\t_gc_alloc") {
		t.Error("new must call _gc_alloc")
	}
	if !strings.Contains(asm, "jal\tA_init") {
		t.Error("new must call the class init")
	}
}

func TestNewSelfTypeUsesObjTab(t *testing.T) {
	asm := generate(t, `class A { dup() : SELF_TYPE { new SELF_TYPE }; };
		class Main { main() : Int { 0 }; };`)
	if !strings.Contains(asm, "class_objTab") {
		t.Error("new SELF_TYPE must go through the class-object table")
	}
}

func TestCaseAbortPaths(t *testing.T) {
	asm := generate(t, `class Main { main() : Int {
		case (new Object) of x : Int => 1; y : Object => 0; esac }; };`)
	if !strings.Contains(asm, "_case_abort_2") {
		t.Error("case must guard against void with file and line")
	}
	if !strings.Contains(asm, "jal\t_case_abort") {
		t.Error("case must abort when no branch matches")
	}
}

func TestLabelDisciplineBindOnce(t *testing.T) {
	a := NewAssembler()
	a.Bind("x")
	defer func() {
		if recover() == nil {
			t.Fatal("double bind must abort")
		}
	}()
	a.Bind("x")
}

func TestLabelDisciplineUnbound(t *testing.T) {
	a := NewAssembler()
	a.B("nowhere")
	defer func() {
		if recover() == nil {
			t.Fatal("finalize with an unbound label must abort")
		}
	}()
	a.Finalize()
}

func TestRegisterDiscipline(t *testing.T) {
	a := NewAssembler()
	r := a.AllocReg()
	a.FreeReg(r)
	defer func() {
		if recover() == nil {
			t.Fatal("double free must abort")
		}
	}()
	a.FreeReg(r)
}
