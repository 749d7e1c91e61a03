package mips

import (
	"sort"

	"coolc/internal/ast"
	"coolc/internal/codegen/data"
	"coolc/internal/codegen/symtab"
	"coolc/internal/klass"
)

// CodeGen walks the typed AST and emits accumulator-style code: every
// expression leaves its boxed result in $a0; $s0 holds self across the
// method body.
//
// Activation record, growing down: caller pushes arguments left to
// right, then evaluates the receiver into $a0 and jals. The callee
// saves $fp, $s0, $ra; $fp points at the save area; let and case
// bindings live below it. The callee pops its arguments.
type CodeGen struct {
	a  *Assembler
	kb *klass.Builder
	d  *data.Data

	st    *symtab.Table[int]
	cls   *klass.Klass
	depth int // words pushed below $fp for bindings
}

func New(kb *klass.Builder, d *data.Data) *CodeGen {
	return &CodeGen{a: NewAssembler(), kb: kb, d: d, st: symtab.New[int]()}
}

// Generate emits every class and returns the assembly text.
func (cg *CodeGen) Generate() string {
	for _, k := range cg.kb.ByTag() {
		cg.genClass(k)
	}
	cg.emitData()
	return cg.a.Finalize()
}

func (cg *CodeGen) genClass(k *klass.Klass) {
	cg.cls = k
	cg.genInit(k)
	for i := range k.Methods {
		m := k.Methods[i]
		if m.Owner != k.Name || m.Feature.Body == nil {
			continue
		}
		cg.genMethod(k, m.Feature)
	}
}

func (cg *CodeGen) prologue(label string) {
	a := cg.a
	a.Global(label)
	a.Bind(label)
	a.Push(FP)
	a.Push(S0)
	a.Push(RA)
	a.Move(FP, SP)
	a.Move(S0, A0)
	cg.depth = 0
}

func (cg *CodeGen) epilogue(numArgs int) {
	a := cg.a
	a.Lw(RA, FP, 1*WordSize)
	a.Lw(S0, FP, 2*WordSize)
	a.Addiu(SP, FP, (3+numArgs)*WordSize)
	a.Lw(FP, FP, 3*WordSize)
	a.Jr(RA)
}

// formal i of n sits above the save area; the rightmost argument was
// pushed last.
func formalOffset(i, n int) int {
	return (4 + (n - 1 - i)) * WordSize
}

func (cg *CodeGen) bindFields(k *klass.Klass) {
	for i, f := range k.Fields {
		if f.Type == klass.PrimIntType || f.Type == klass.PrimBytesType {
			continue
		}
		cg.st.Add(f.Name, symtab.FieldSymbol[int](k.FieldOffset(i)))
	}
}

// pushBinding allocates a stack slot for a let or case binding holding
// the value currently in $a0.
func (cg *CodeGen) pushBinding(name string) {
	cg.a.Push(A0)
	cg.depth++
	cg.st.Add(name, symtab.LocalOffsetSymbol[int](-(cg.depth-1)*WordSize))
}

func (cg *CodeGen) popBinding() {
	cg.a.Addiu(SP, SP, WordSize)
	cg.depth--
}

// genInit emits <Class>_init: zero the declared fields, run the parent
// init, then the declared initializers; returns with $a0 = self.
func (cg *CodeGen) genInit(k *klass.Klass) {
	a := cg.a
	cg.prologue(data.InitLabel(k.Name))

	ownStart := 0
	if k.Parent != nil {
		ownStart = len(k.Parent.Fields)
	}
	for i := ownStart; i < len(k.Fields); i++ {
		f := k.Fields[i]
		if f.Type == klass.PrimIntType || f.Type == klass.PrimBytesType {
			continue
		}
		cg.loadDefault(f.Type)
		a.Sw(A0, S0, k.FieldOffset(i))
	}
	if k.Parent != nil {
		a.Move(A0, S0)
		a.Jal(data.InitLabel(k.Parent.Name))
	}

	cg.st.Push()
	cg.bindFields(k)
	for i := ownStart; i < len(k.Fields); i++ {
		init := fieldInitializer(k, k.Fields[i].Name)
		if init == nil {
			continue
		}
		cg.emit(init)
		a.Sw(A0, S0, k.FieldOffset(i))
	}
	cg.st.Pop()

	a.Move(A0, S0)
	cg.epilogue(0)
}

func fieldInitializer(k *klass.Klass, name string) ast.Expr {
	for _, f := range k.Ast.Features {
		if f.Kind == ast.AttrFeature && f.Name == name {
			return f.Init
		}
	}
	return nil
}

// loadDefault leaves the zero value of a declared type in $a0: the
// boxed zero for the value classes, null otherwise.
func (cg *CodeGen) loadDefault(typ string) {
	a := cg.a
	switch typ {
	case ast.IntClass:
		a.La(A0, cg.d.Int(0).Label)
	case ast.BoolClass:
		a.La(A0, cg.d.Bool(false).Label)
	case ast.StringClass:
		a.La(A0, cg.d.String("").Label)
	default:
		a.Move(A0, ZERO)
	}
}

func (cg *CodeGen) genMethod(k *klass.Klass, f *ast.Feature) {
	cg.prologue(data.MethodLabel(k.Name, f.Name))
	cg.st.Push()
	cg.bindFields(k)
	cg.st.Push()
	for i, frm := range f.Formals {
		cg.st.Add(frm.Name, symtab.LocalOffsetSymbol[int](formalOffset(i, len(f.Formals))))
	}
	cg.emit(f.Body)
	cg.st.Pop()
	cg.st.Pop()
	cg.epilogue(len(f.Formals))
}

// ---------------------------------------------------------------------
// Expressions: result in $a0

func (cg *CodeGen) emit(e ast.Expr) {
	a := cg.a
	switch n := e.(type) {
	case *ast.IntConst:
		a.La(A0, cg.d.Int(n.Value).Label)
	case *ast.StringConst:
		a.La(A0, cg.d.String(n.Value).Label)
	case *ast.BoolConst:
		a.La(A0, cg.d.Bool(n.Value).Label)
	case *ast.Object:
		cg.emitObject(n)
	case *ast.Assign:
		cg.emitAssign(n)
	case *ast.Binary:
		cg.emitBinary(n)
	case *ast.Unary:
		cg.emitUnary(n)
	case *ast.If:
		cg.emitIf(n)
	case *ast.While:
		cg.emitWhile(n)
	case *ast.Block:
		for _, sub := range n.Body {
			cg.emit(sub)
		}
	case *ast.Let:
		cg.emitLet(n)
	case *ast.Case:
		cg.emitCase(n)
	case *ast.New:
		cg.emitNew(n)
	case *ast.Dispatch:
		cg.emitDispatch(n)
	default:
		panic("mips: unknown expression kind")
	}
}

func (cg *CodeGen) emitObject(n *ast.Object) {
	a := cg.a
	if n.Name == ast.SelfObject {
		a.Move(A0, S0)
		return
	}
	sym := cg.st.Find(n.Name)
	if sym.Kind == symtab.Field {
		a.Lw(A0, S0, sym.Offset)
	} else {
		a.Lw(A0, FP, sym.Offset)
	}
}

func (cg *CodeGen) emitAssign(n *ast.Assign) {
	a := cg.a
	cg.emit(n.Value)
	sym := cg.st.Find(n.Name)
	if sym.Kind == symtab.Field {
		a.Sw(A0, S0, sym.Offset)
	} else {
		a.Sw(A0, FP, sym.Offset)
	}
}

// allocBox wraps the raw value in a temporary register into a fresh
// instance of a value class; result box in $a0.
func (cg *CodeGen) allocBox(k *klass.Klass, val Register) {
	a := cg.a
	a.Push(val)
	cg.depth++
	cg.emitAlloc(k)
	a.Jal(data.InitLabel(k.Name))
	t := a.AllocReg()
	a.Pop(t)
	cg.depth--
	a.Sw(t, A0, FieldOffset)
	a.FreeReg(t)
}

// emitAlloc calls the allocator for a statically known class.
func (cg *CodeGen) emitAlloc(k *klass.Klass) {
	a := cg.a
	a.Li(A0, k.Tag)
	a.Li(A1, k.SizeInBytes())
	a.La(A2, data.DispTabLabel(k.Name))
	a.Jal("_gc_alloc")
}

func (cg *CodeGen) emitBinary(n *ast.Binary) {
	a := cg.a
	cg.emit(n.Left)
	a.Push(A0)
	cg.depth++
	cg.emit(n.Right)
	left := a.AllocReg()
	a.Pop(left)
	cg.depth--

	switch n.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		rv := a.AllocReg()
		a.Lw(rv, A0, FieldOffset)
		a.Lw(left, left, FieldOffset)
		switch n.Op {
		case ast.OpAdd:
			a.Add(left, left, rv)
		case ast.OpSub:
			a.Sub(left, left, rv)
		case ast.OpMul:
			a.Mul(left, left, rv)
		case ast.OpDiv:
			a.Div(left, left, rv)
		}
		a.FreeReg(rv)
		cg.allocBoxFrom(left)
		a.FreeReg(left)
	case ast.OpLT, ast.OpLE:
		rv := a.AllocReg()
		a.Lw(rv, A0, FieldOffset)
		a.Lw(left, left, FieldOffset)
		trueL := a.FreshLabel("cmp_true")
		endL := a.FreshLabel("cmp_end")
		if n.Op == ast.OpLT {
			a.Blt(left, rv, trueL)
		} else {
			a.Ble(left, rv, trueL)
		}
		a.FreeReg(rv)
		a.La(A0, cg.d.Bool(false).Label)
		a.B(endL)
		a.Bind(trueL)
		a.La(A0, cg.d.Bool(true).Label)
		a.Bind(endL)
		a.FreeReg(left)
	case ast.OpEQ:
		cg.emitEquality(n, left)
	}
}

// allocBoxFrom boxes the raw Int in reg; frees nothing.
func (cg *CodeGen) allocBoxFrom(raw Register) {
	cg.allocBox(cg.kb.Klass(ast.IntClass), raw)
}

func (cg *CodeGen) emitEquality(n *ast.Binary, left Register) {
	a := cg.a
	lt := n.Left.StaticType()
	trueL := a.FreshLabel("eq_true")
	endL := a.FreshLabel("eq_end")
	if lt == ast.IntClass || lt == ast.BoolClass {
		rv := a.AllocReg()
		a.Lw(rv, A0, FieldOffset)
		a.Lw(left, left, FieldOffset)
		a.Beq(left, rv, trueL)
		a.FreeReg(rv)
	} else {
		// runtime comparison: _equals($a0 = lhs, $a1 = rhs) -> truth
		a.Move(A1, A0)
		a.Move(A0, left)
		a.Jal("_equals")
		a.Bne(A0, ZERO, trueL)
	}
	a.FreeReg(left)
	a.La(A0, cg.d.Bool(false).Label)
	a.B(endL)
	a.Bind(trueL)
	a.La(A0, cg.d.Bool(true).Label)
	a.Bind(endL)
}

func (cg *CodeGen) emitUnary(n *ast.Unary) {
	a := cg.a
	cg.emit(n.Operand)
	switch n.Op {
	case ast.OpNeg:
		t := a.AllocReg()
		a.Lw(t, A0, FieldOffset)
		a.Neg(t, t)
		cg.allocBoxFrom(t)
		a.FreeReg(t)
	case ast.OpNot:
		t := a.AllocReg()
		a.Lw(t, A0, FieldOffset)
		trueL := a.FreshLabel("not_true")
		endL := a.FreshLabel("not_end")
		a.Beqz(t, trueL)
		a.FreeReg(t)
		a.La(A0, cg.d.Bool(false).Label)
		a.B(endL)
		a.Bind(trueL)
		a.La(A0, cg.d.Bool(true).Label)
		a.Bind(endL)
	case ast.OpIsVoid:
		trueL := a.FreshLabel("isvoid_true")
		endL := a.FreshLabel("isvoid_end")
		a.Beqz(A0, trueL)
		a.La(A0, cg.d.Bool(false).Label)
		a.B(endL)
		a.Bind(trueL)
		a.La(A0, cg.d.Bool(true).Label)
		a.Bind(endL)
	}
}

func (cg *CodeGen) emitIf(n *ast.If) {
	a := cg.a
	cg.emit(n.Cond)
	t := a.AllocReg()
	a.Lw(t, A0, FieldOffset)
	elseL := a.FreshLabel("if_else")
	endL := a.FreshLabel("if_end")
	a.Beqz(t, elseL)
	a.FreeReg(t)
	cg.emit(n.Then)
	a.B(endL)
	a.Bind(elseL)
	cg.emit(n.Else)
	a.Bind(endL)
}

func (cg *CodeGen) emitWhile(n *ast.While) {
	a := cg.a
	headL := a.FreshLabel("loop_head")
	endL := a.FreshLabel("loop_end")
	a.Bind(headL)
	cg.emit(n.Cond)
	t := a.AllocReg()
	a.Lw(t, A0, FieldOffset)
	a.Beqz(t, endL)
	a.FreeReg(t)
	cg.emit(n.Body)
	a.B(headL)
	a.Bind(endL)
	a.Move(A0, ZERO) // while evaluates to void
}

func (cg *CodeGen) emitLet(n *ast.Let) {
	if n.Init != nil {
		cg.emit(n.Init)
	} else {
		cg.loadDefault(n.DeclType)
	}
	cg.st.Push()
	cg.pushBinding(n.Name)
	cg.emit(n.Body)
	cg.popBinding()
	cg.st.Pop()
}

// emitCase orders branches by descending class tag so the most specific
// match fires first; each test is an interval check on the dynamic tag.
func (cg *CodeGen) emitCase(n *ast.Case) {
	a := cg.a
	cg.emit(n.Expr)

	endL := a.FreshLabel("case_end")
	okL := a.FreshLabel("case_obj")
	a.Bne(A0, ZERO, okL)
	// case on void: abort with file and line
	a.La(A0, cg.d.String(cg.cls.Ast.FileName).Label)
	a.Li(T1, n.Line)
	a.Jal("_case_abort_2")
	a.Bind(okL)

	branches := append([]*ast.CaseBranch(nil), n.Branches...)
	sort.Slice(branches, func(i, j int) bool {
		return cg.kb.Klass(branches[i].DeclType).Tag > cg.kb.Klass(branches[j].DeclType).Tag
	})

	// $a0 holds the scrutinee along the whole test chain; the tag is
	// reloaded per test so nothing is live across a branch body
	for _, br := range branches {
		k := cg.kb.Klass(br.DeclType)
		nextL := a.FreshLabel("case_next")
		tag := a.AllocReg()
		a.Lw(tag, A0, TagOffset)
		a.BltImm(tag, k.Tag, nextL)
		a.BgtImm(tag, k.ChildMaxTag, nextL)
		a.FreeReg(tag)

		cg.st.Push()
		cg.pushBinding(br.Name)
		cg.emit(br.Body)
		cg.popBinding()
		cg.st.Pop()
		a.B(endL)
		a.Bind(nextL)
	}

	// no branch matched: abort with the dynamic tag
	a.Lw(A0, A0, TagOffset)
	a.Jal("_case_abort")
	a.Bind(endL)
}

func (cg *CodeGen) emitNew(n *ast.New) {
	a := cg.a
	if n.TypeName != ast.SelfType {
		k := cg.kb.Klass(n.TypeName)
		cg.emitAlloc(k)
		a.Jal(data.InitLabel(k.Name))
		return
	}
	// new SELF_TYPE: clone the receiver's header shape, init through
	// the class-object table
	a.Lw(A0, S0, TagOffset)
	a.Lw(A1, S0, SizeOffset)
	a.Lw(A2, S0, DispTabOffset)
	a.Jal("_gc_alloc")
	t := a.AllocReg()
	a.Lw(t, S0, TagOffset)
	a.Sll(t, t, 3) // tag * 2 words
	t2 := a.AllocReg()
	a.La(t2, data.ClassObjTabLabel)
	a.Add(t, t, t2)
	a.Lw(t, t, WordSize) // init slot of the pair
	a.FreeReg(t2)
	a.Jalr(t)
	a.FreeReg(t)
}

func (cg *CodeGen) emitDispatch(n *ast.Dispatch) {
	a := cg.a
	for _, arg := range n.Args {
		cg.emit(arg)
		a.Push(A0)
		cg.depth++
	}
	cg.emit(n.Receiver)
	cg.depth -= len(n.Args) // the callee pops its arguments

	okL := a.FreshLabel("dispatch_obj")
	a.Bne(A0, ZERO, okL)
	a.La(A0, cg.d.String(cg.cls.Ast.FileName).Label)
	a.Li(T1, n.Line)
	a.Jal("_dispatch_abort")
	a.Bind(okL)

	if n.TypeAnnot != "" {
		k := cg.kb.Klass(n.TypeAnnot)
		a.Jal(data.MethodLabel(k.Methods[k.MethodIndex(n.Method)].Owner, n.Method))
		return
	}
	recvType := n.Receiver.StaticType()
	if recvType == ast.SelfType {
		recvType = cg.cls.Name
	}
	k := cg.kb.Klass(recvType)
	idx := k.MethodIndex(n.Method)
	t := a.AllocReg()
	a.Lw(t, A0, DispTabOffset)
	a.Lw(t, t, idx*WordSize)
	a.Jalr(t)
	a.FreeReg(t)
}
