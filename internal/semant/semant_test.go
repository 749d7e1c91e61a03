package semant

import (
	"strings"
	"testing"

	"coolc/internal/ast"
	"coolc/internal/diag"
	"coolc/internal/lexer"
	"coolc/internal/parser"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := parser.New(lexer.NewFromSource("test.cl", src))
	prog := p.Parse()
	if prog == nil {
		t.Fatalf("parse failed: %s", p.ErrorMsg())
	}
	return prog
}

func analyze(t *testing.T, src string) (*ClassNode, []*diag.Error) {
	t.Helper()
	return Analyze(parse(t, src))
}

func mustAnalyze(t *testing.T, src string) *ClassNode {
	t.Helper()
	root, errs := analyze(t, src)
	if root == nil {
		t.Fatalf("unexpected semantic errors: %v", errs)
	}
	return root
}

func mustFail(t *testing.T, src, fragment string) {
	t.Helper()
	root, errs := analyze(t, src)
	if root != nil {
		t.Fatalf("expected a semantic error containing %q", fragment)
	}
	for _, e := range errs {
		if strings.Contains(e.Error(), fragment) {
			return
		}
	}
	t.Fatalf("no error contains %q in %v", fragment, errs)
}

const mainOK = "class Main { main() : Int { 0 }; };"

func TestMinimalProgram(t *testing.T) {
	root := mustAnalyze(t, "class A { }; class Main inherits IO { main() : Int { 42 }; };")
	if root.Class.Name != ast.ObjectClass {
		t.Fatalf("root is %s", root.Class.Name)
	}
}

func TestBasicClassesInserted(t *testing.T) {
	root := mustAnalyze(t, mainOK)
	names := map[string]bool{}
	for _, ch := range root.Children {
		names[ch.Class.Name] = true
	}
	for _, want := range []string{"Int", "Bool", "String", "IO", "Main"} {
		if !names[want] {
			t.Errorf("missing child %s of Object", want)
		}
	}
}

func TestInheritanceCycle(t *testing.T) {
	mustFail(t, "class A inherits B { }; class B inherits A { }; "+mainOK,
		"Inheritance cycle")
}

func TestInheritFromPrimitive(t *testing.T) {
	for _, p := range []string{"Int", "Bool", "String"} {
		mustFail(t, "class A inherits "+p+" { }; "+mainOK, "can't inherit")
	}
}

func TestUndefinedParent(t *testing.T) {
	mustFail(t, "class A inherits Nope { }; "+mainOK, "undefined class")
}

func TestRedefinedClass(t *testing.T) {
	mustFail(t, "class A { }; class A { }; "+mainOK, "already defined")
}

func TestMainRequired(t *testing.T) {
	mustFail(t, "class A { };", "Main is not defined")
	mustFail(t, "class Main { };", "main is not defined")
	mustFail(t, "class Main { main(x : Int) : Int { 0 }; };", "should not take arguments")
}

func TestAttributeRules(t *testing.T) {
	mustFail(t, "class A { x : Int; x : Int; }; "+mainOK, "already defined")
	mustFail(t, "class A { x : Int; }; class B inherits A { x : Int; }; "+mainOK, "already defined")
	mustFail(t, "class A { self : Int; }; "+mainOK, "'self'")
}

func TestMethodOverrideSignature(t *testing.T) {
	mustFail(t, `class A { f(x : Int) : Int { x }; };
		class B inherits A { f(x : Bool) : Int { 0 }; }; `+mainOK,
		"incompatible")
	mustFail(t, `class A { f(x : Int) : Int { x }; };
		class B inherits A { f(x : Int) : Bool { true }; }; `+mainOK,
		"incompatible")
	mustAnalyze(t, `class A { f(x : Int) : Int { x }; };
		class B inherits A { f(x : Int) : Int { x + 1 }; }; `+mainOK)
}

func TestExpressionTyping(t *testing.T) {
	prog := parse(t, `class Main {
		main() : Int { let x : Int in x + 1 };
		s() : String { "hello" };
		b() : Bool { 1 < 2 };
		w() : Object { while false loop 0 pool };
	};`)
	if root, errs := Analyze(prog); root == nil {
		t.Fatalf("errors: %v", errs)
	}
	body := prog.Classes[0].Features[0].Body
	if body.StaticType() != "Int" {
		t.Errorf("let body type: %s", body.StaticType())
	}
	if prog.Classes[0].Features[3].Body.StaticType() != "Object" {
		t.Errorf("while type: %s", prog.Classes[0].Features[3].Body.StaticType())
	}
}

func TestIfTypeIsLUB(t *testing.T) {
	prog := parse(t, `class A { }; class B inherits A { }; class C inherits A { };
		class Main { f(p : Bool) : A { if p then new B else new C fi }; main() : Int { 0 }; };`)
	if root, errs := Analyze(prog); root == nil {
		t.Fatalf("errors: %v", errs)
	}
	var f *ast.Feature
	for _, c := range prog.Classes {
		if c.Name == "Main" {
			f = c.Features[0]
		}
	}
	if f.Body.StaticType() != "A" {
		t.Errorf("LUB(B, C): got %s want A", f.Body.StaticType())
	}
}

func TestTypeErrors(t *testing.T) {
	mustFail(t, `class Main { main() : Int { 1 + true }; };`, "Non-Int")
	mustFail(t, `class Main { main() : Int { "s" }; };`, "does not conform")
	mustFail(t, `class Main { main() : Int { self <- 0 }; };`, "")
	mustFail(t, `class Main { main() : Int { x }; };`, "Undeclared")
	mustFail(t, `class Main { main() : Int { 1 = "x" }; };`, "comparison")
	mustFail(t, `class Main { main() : Int { if 1 then 2 else 3 fi }; };`, "instead of Bool")
}

func TestSelfAssignment(t *testing.T) {
	mustFail(t, `class Main { f() : Object { self <- new Main }; main() : Int { 0 }; };`,
		"assign to 'self'")
}

func TestDuplicateCaseBranch(t *testing.T) {
	mustFail(t, `class Main { main() : Int {
		case 1 of a : Int => 1; b : Int => 2; esac }; };`,
		"Duplicate branch")
}

func TestCaseTyping(t *testing.T) {
	prog := parse(t, `class Main { main() : Int {
		case (new Object) of x : Int => 1; y : Object => 0; esac }; };`)
	if root, errs := Analyze(prog); root == nil {
		t.Fatalf("errors: %v", errs)
	}
	if got := prog.Classes[0].Features[0].Body.StaticType(); got != "Int" {
		t.Errorf("case type: %s", got)
	}
}

func TestDispatchTyping(t *testing.T) {
	mustAnalyze(t, `class A { f(x : Int) : Int { x }; };
		class Main { a : A <- new A; main() : Int { a.f(1) }; };`)
	mustFail(t, `class A { f(x : Int) : Int { x }; };
		class Main { a : A <- new A; main() : Int { a.g(1) }; };`, "undefined method")
	mustFail(t, `class A { f(x : Int) : Int { x }; };
		class Main { a : A <- new A; main() : Int { a.f(1, 2) }; };`, "number of arguments")
	mustFail(t, `class A { f(x : Int) : Int { x }; };
		class Main { a : A <- new A; main() : Int { a.f(true) }; };`, "does not conform")
}

func TestStaticDispatchConformance(t *testing.T) {
	mustAnalyze(t, `class A { f() : Int { 1 }; }; class B inherits A { };
		class Main { main() : Int { (new B)@A.f() }; };`)
	mustFail(t, `class A { f() : Int { 1 }; }; class B { };
		class Main { main() : Int { (new B)@A.f() }; };`, "static dispatch")
}

func TestSelfTypeDispatch(t *testing.T) {
	prog := parse(t, `class A { id() : SELF_TYPE { self }; };
		class B inherits A { };
		class Main { main() : Int { let b : B <- (new B).id() in 0 }; };`)
	if root, errs := Analyze(prog); root == nil {
		t.Fatalf("SELF_TYPE return should specialize on the receiver: %v", errs)
	}
}

func TestConformanceAndLUB(t *testing.T) {
	src := `class A { }; class B inherits A { }; class C inherits B { }; ` + mainOK
	prog := parse(t, src)
	root, errs := Analyze(prog)
	if root == nil {
		t.Fatalf("errors: %v", errs)
	}
	s := &Semant{program: prog, classes: map[string]*ast.Class{}}
	for _, c := range BasicClasses() {
		s.classes[c.Name] = c
	}
	for _, c := range prog.Classes {
		s.classes[c.Name] = c
	}
	// transitivity: C <= B, B <= A => C <= A
	if !s.Conforms("C", "B") || !s.Conforms("B", "A") || !s.Conforms("C", "A") {
		t.Error("conformance transitivity broken")
	}
	if s.Conforms("A", "C") {
		t.Error("conformance is not symmetric")
	}
	if got := s.LUB("C", "B"); got != "B" {
		t.Errorf("LUB(C, B) = %s", got)
	}
	if got := s.LUB("B", "Int"); got != "Object" {
		t.Errorf("LUB(B, Int) = %s", got)
	}
}

func TestCanAllocateDecoration(t *testing.T) {
	prog := parse(t, `class Main { main() : Int { 1 + 2 }; f() : Bool { true }; };`)
	if root, errs := Analyze(prog); root == nil {
		t.Fatalf("errors: %v", errs)
	}
	if !prog.Classes[0].Features[0].Body.CanAllocate() {
		t.Error("arithmetic boxes its result and must be allocating")
	}
	if prog.Classes[0].Features[1].Body.CanAllocate() {
		t.Error("a bare boolean literal does not allocate")
	}
}
