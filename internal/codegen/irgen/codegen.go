package irgen

import (
	"fmt"
	"sort"

	"coolc/internal/ast"
	"coolc/internal/codegen/data"
	"coolc/internal/codegen/symtab"
	"coolc/internal/klass"
	"coolc/internal/myir"
)

// CodeGen lowers the typed AST into the custom IR over the shared
// Klass/Data layer. Primitive values cross every call boundary boxed;
// the unboxing pass strips what never escapes.
type CodeGen struct {
	m  *myir.Module
	b  *myir.Builder
	kb *klass.Builder
	d  *dataIR
	rt *Runtime

	st   *symtab.Table[*myir.Operand]
	cls  *klass.Klass
	fn   *myir.Function
	self *myir.Operand

	// lexically live locals, snapshotted into safepoints
	live []*myir.Operand

	blocks int
}

func New(kb *klass.Builder, dd *data.Data) *CodeGen {
	m := myir.NewModule()
	return &CodeGen{
		m:  m,
		b:  myir.NewBuilder(m),
		kb: kb,
		d:  newDataIR(m, dd),
		rt: declareRuntime(m),
		st: symtab.New[*myir.Operand](),
	}
}

// Generate lowers every class and returns the module.
func (cg *CodeGen) Generate() *myir.Module {
	cg.declareMethods()
	for _, k := range cg.kb.ByTag() {
		cg.genClass(k)
	}
	cg.d.classTables()
	cg.genMain()
	return cg.m
}

func (cg *CodeGen) Module() *myir.Module { return cg.m }

// declareMethods registers every init and method symbol up front so
// dispatch tables and call sites agree on signatures.
func (cg *CodeGen) declareMethods() {
	for _, k := range cg.kb.ByTag() {
		cg.d.initSym(k.Name)
		for i := range k.Methods {
			cg.d.methodSym(k, i)
		}
	}
}

func (cg *CodeGen) newBlock(name string) *myir.Block {
	cg.blocks++
	return cg.b.NewBlock(fmt.Sprintf("%s%d", name, cg.blocks))
}

func (cg *CodeGen) null() *myir.Operand {
	return cg.m.NewConstant(myir.Pointer, 0)
}

func (cg *CodeGen) intImm(v int64) *myir.Operand {
	return cg.m.NewConstant(myir.Int64, v)
}

// call emits a direct call and records the safepoint's live operands.
func (cg *CodeGen) call(f *myir.Function, args []*myir.Operand) *myir.Operand {
	res := cg.b.Call(f, args)
	cg.recordSafepoint()
	return res
}

func (cg *CodeGen) callIndirect(ret myir.OperandType, callee *myir.Operand, args []*myir.Operand) *myir.Operand {
	res := cg.b.CallIndirect(ret, callee, args)
	cg.recordSafepoint()
	return res
}

func (cg *CodeGen) recordSafepoint() {
	blk := cg.b.CurrentBlock()
	inst := blk.Insts()[len(blk.Insts())-1]
	livein := append([]*myir.Operand{cg.self}, cg.live...)
	cg.fn.Safepoints = append(cg.fn.Safepoints, &myir.Safepoint{Call: inst, Live: livein})
}

// ---------------------------------------------------------------------
// Class lowering

func (cg *CodeGen) genClass(k *klass.Klass) {
	cg.cls = k
	cg.genInit(k)
	for i := range k.Methods {
		m := k.Methods[i]
		if m.Owner != k.Name {
			continue // inherited entry, defined by the owner
		}
		if m.Feature.Body == nil {
			continue // primitive method, provided by the runtime
		}
		cg.genMethod(k, m.Feature)
	}
}

// genInit emits the class init: zero every declared field, run the
// parent init, then the attribute initializers in declaration order.
func (cg *CodeGen) genInit(k *klass.Klass) {
	fn := cg.d.initSym(k.Name)
	cg.fn = fn
	cg.self = fn.Params()[0]
	cg.live = nil

	cg.startFunction(fn, "entry")

	ownStart := 0
	if k.Parent != nil {
		ownStart = len(k.Parent.Fields)
	}
	for i := ownStart; i < len(k.Fields); i++ {
		f := k.Fields[i]
		if f.Type == klass.PrimIntType || f.Type == klass.PrimBytesType {
			continue
		}
		cg.b.St(cg.self, cg.intImm(int64(k.FieldOffset(i))), cg.defaultValue(f.Type))
	}
	if k.Parent != nil {
		cg.call(cg.d.initSym(k.Parent.Name), []*myir.Operand{cg.self})
	}

	cg.st.Push()
	cg.bindFields(k)
	for i := ownStart; i < len(k.Fields); i++ {
		init := cg.fieldInitializer(k, i)
		if init == nil {
			continue
		}
		v := cg.emit(init)
		cg.b.St(cg.self, cg.intImm(int64(k.FieldOffset(i))), v)
	}
	cg.st.Pop()

	cg.b.Ret(nil)
}

// fieldInitializer finds the AST initializer for field slot i, if any.
func (cg *CodeGen) fieldInitializer(k *klass.Klass, i int) ast.Expr {
	name := k.Fields[i].Name
	for _, f := range k.Ast.Features {
		if f.Kind == ast.AttrFeature && f.Name == name {
			return f.Init
		}
	}
	return nil
}

func (cg *CodeGen) defaultValue(typ string) *myir.Operand {
	switch typ {
	case ast.IntClass:
		return cg.b.Move(cg.d.intConst(0))
	case ast.BoolClass:
		return cg.b.Move(cg.d.boolConst(false))
	case ast.StringClass:
		return cg.b.Move(cg.d.stringConst(""))
	}
	return cg.null()
}

func (cg *CodeGen) startFunction(fn *myir.Function, name string) *myir.Block {
	cg.b.SetCurrentFunction(fn)
	entry := cg.newBlock(name)
	fn.SetEntry(entry)
	cg.b.SetCurrentBlock(entry)
	return entry
}

func (cg *CodeGen) bindFields(k *klass.Klass) {
	for i, f := range k.Fields {
		if f.Type == klass.PrimIntType || f.Type == klass.PrimBytesType {
			continue
		}
		cg.st.Add(f.Name, symtab.FieldSymbol[*myir.Operand](k.FieldOffset(i)))
	}
}

func (cg *CodeGen) genMethod(k *klass.Klass, f *ast.Feature) {
	name := data.MethodLabel(k.Name, f.Name)
	fn := cg.m.GetFunction(name)
	cg.fn = fn
	cg.self = fn.Params()[0]
	cg.live = nil
	for i, frm := range f.Formals {
		p := fn.Params()[i+1]
		p.Prim = primKind(frm.DeclType)
	}

	cg.startFunction(fn, "entry")
	cg.st.Push()
	cg.bindFields(k)
	cg.st.Push()
	for i, frm := range f.Formals {
		cg.st.Add(frm.Name, symtab.LocalSymbol(fn.Params()[i+1]))
	}
	res := cg.emit(f.Body)
	cg.st.Pop()
	cg.st.Pop()
	cg.b.Ret(res)
}

func primKind(typ string) myir.PrimKind {
	switch typ {
	case ast.IntClass:
		return myir.PrimInt
	case ast.BoolClass:
		return myir.PrimBool
	}
	return myir.NoPrim
}

// genMain emits the process entry: initialize the runtime, build the
// Main object, run Main.main, tear down.
func (cg *CodeGen) genMain() {
	fn := cg.m.NewFunction("main", myir.Int64, nil, nil)
	cg.fn = fn
	cg.self = cg.null()
	cg.live = nil
	cg.startFunction(fn, "entry")

	cg.call(cg.rt.InitRuntime, nil)
	mainObj := cg.emitNewKnown(cg.kb.Klass(ast.MainClass))
	mainFn := cg.m.GetFunction(cg.kb.Klass(ast.MainClass).MethodFullName(ast.MainMethod))
	cg.call(mainFn, []*myir.Operand{mainObj})
	cg.call(cg.rt.FinishRuntime, nil)
	cg.b.Ret(cg.intImm(0))
}

// ---------------------------------------------------------------------
// Expression lowering

func (cg *CodeGen) emit(e ast.Expr) *myir.Operand {
	switch n := e.(type) {
	case *ast.IntConst:
		return cg.b.Move(cg.d.intConst(n.Value))
	case *ast.StringConst:
		return cg.b.Move(cg.d.stringConst(n.Value))
	case *ast.BoolConst:
		return cg.b.Move(cg.d.boolConst(n.Value))
	case *ast.Object:
		return cg.emitObject(n)
	case *ast.Assign:
		return cg.emitAssign(n)
	case *ast.Binary:
		return cg.emitBinary(n)
	case *ast.Unary:
		return cg.emitUnary(n)
	case *ast.If:
		return cg.emitIf(n)
	case *ast.While:
		return cg.emitWhile(n)
	case *ast.Block:
		var res *myir.Operand
		for _, sub := range n.Body {
			res = cg.emit(sub)
		}
		return res
	case *ast.Let:
		return cg.emitLet(n)
	case *ast.Case:
		return cg.emitCase(n)
	case *ast.New:
		return cg.emitNew(n)
	case *ast.Dispatch:
		return cg.emitDispatch(n)
	}
	panic("irgen: unknown expression kind")
}

func (cg *CodeGen) emitObject(n *ast.Object) *myir.Operand {
	if n.Name == ast.SelfObject {
		return cg.self
	}
	sym := cg.st.Find(n.Name)
	if sym.Kind == symtab.Field {
		return cg.b.Ld(myir.Pointer, cg.self, cg.intImm(int64(sym.Offset)))
	}
	return sym.Value
}

func (cg *CodeGen) emitAssign(n *ast.Assign) *myir.Operand {
	v := cg.emit(n.Value)
	sym := cg.st.Find(n.Name)
	if sym.Kind == symtab.Field {
		cg.b.St(cg.self, cg.intImm(int64(sym.Offset)), v)
	} else {
		cg.b.MoveTo(v, sym.Value)
	}
	return v
}

// loadPrim reads the single payload slot of a boxed Int or Bool.
func (cg *CodeGen) loadPrim(obj *myir.Operand) *myir.Operand {
	return cg.b.Ld(myir.Int64, obj, cg.intImm(FieldOffset))
}

// allocInt boxes a raw integer.
func (cg *CodeGen) allocInt(raw *myir.Operand) *myir.Operand {
	cg.live = append(cg.live, raw)
	box := cg.emitNewKnown(cg.kb.Klass(ast.IntClass))
	cg.live = cg.live[:len(cg.live)-1]
	cg.b.St(box, cg.intImm(FieldOffset), raw)
	return box
}

// selectBool turns a raw predicate into one of the two boxed booleans.
func (cg *CodeGen) selectBool(raw *myir.Operand) *myir.Operand {
	return cg.ternary(raw,
		func() *myir.Operand { return cg.b.Move(cg.d.boolConst(true)) },
		func() *myir.Operand { return cg.b.Move(cg.d.boolConst(false)) })
}

// ternary evaluates one of two arms under a raw predicate and merges
// into a single result operand.
func (cg *CodeGen) ternary(raw *myir.Operand, onTrue, onFalse func() *myir.Operand) *myir.Operand {
	result := cg.m.NewValue(myir.Pointer, "t")
	trueB := cg.newBlock("true")
	falseB := cg.newBlock("false")
	mergeB := cg.newBlock("merge")

	cg.b.CondBr(raw, trueB, falseB)

	cg.b.SetCurrentBlock(trueB)
	cg.b.MoveTo(onTrue(), result)
	cg.b.Br(mergeB)

	cg.b.SetCurrentBlock(falseB)
	cg.b.MoveTo(onFalse(), result)
	cg.b.Br(mergeB)

	cg.b.SetCurrentBlock(mergeB)
	return result
}

func (cg *CodeGen) emitBinary(n *ast.Binary) *myir.Operand {
	l := cg.emit(n.Left)
	cg.live = append(cg.live, l)
	r := cg.emit(n.Right)
	cg.live = cg.live[:len(cg.live)-1]

	switch n.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		lv, rv := cg.loadPrim(l), cg.loadPrim(r)
		var raw *myir.Operand
		switch n.Op {
		case ast.OpAdd:
			raw = cg.b.Add(lv, rv)
		case ast.OpSub:
			raw = cg.b.Sub(lv, rv)
		case ast.OpMul:
			raw = cg.b.Mul(lv, rv)
		case ast.OpDiv:
			raw = cg.b.Div(lv, rv)
		}
		return cg.allocInt(raw)
	case ast.OpLT:
		return cg.selectBool(cg.b.LT(cg.loadPrim(l), cg.loadPrim(r)))
	case ast.OpLE:
		return cg.selectBool(cg.b.LE(cg.loadPrim(l), cg.loadPrim(r)))
	case ast.OpEQ:
		lt := n.Left.StaticType()
		if lt == ast.IntClass || lt == ast.BoolClass {
			return cg.selectBool(cg.b.EQ(cg.loadPrim(l), cg.loadPrim(r)))
		}
		raw := cg.call(cg.rt.Equals, []*myir.Operand{l, r})
		return cg.selectBool(raw)
	}
	panic("irgen: unknown binary operator")
}

func (cg *CodeGen) emitUnary(n *ast.Unary) *myir.Operand {
	o := cg.emit(n.Operand)
	switch n.Op {
	case ast.OpNeg:
		return cg.allocInt(cg.b.Neg(cg.loadPrim(o)))
	case ast.OpNot:
		raw := cg.b.Xor(cg.loadPrim(o), cg.intImm(1))
		return cg.selectBool(raw)
	case ast.OpIsVoid:
		return cg.selectBool(cg.b.EQ(o, cg.null()))
	}
	panic("irgen: unknown unary operator")
}

func (cg *CodeGen) emitIf(n *ast.If) *myir.Operand {
	pred := cg.loadPrim(cg.emit(n.Cond))
	return cg.ternary(pred,
		func() *myir.Operand { return cg.emit(n.Then) },
		func() *myir.Operand { return cg.emit(n.Else) })
}

func (cg *CodeGen) emitWhile(n *ast.While) *myir.Operand {
	head := cg.newBlock("loop_head")
	body := cg.newBlock("loop_body")
	exit := cg.newBlock("loop_exit")

	cg.b.Br(head)
	cg.b.SetCurrentBlock(head)
	pred := cg.loadPrim(cg.emit(n.Cond))
	cg.b.CondBr(pred, body, exit)

	cg.b.SetCurrentBlock(body)
	cg.emit(n.Body)
	cg.b.Br(head)

	cg.b.SetCurrentBlock(exit)
	return cg.b.Move(cg.null())
}

func (cg *CodeGen) emitLet(n *ast.Let) *myir.Operand {
	v := cg.m.NewValue(myir.Pointer, n.Name)
	v.Prim = primKind(n.DeclType)
	var init *myir.Operand
	if n.Init != nil {
		init = cg.emit(n.Init)
	} else {
		init = cg.defaultValue(n.DeclType)
	}
	cg.b.MoveTo(init, v)

	cg.st.Push()
	cg.st.Add(n.Name, symtab.LocalSymbol(v))
	cg.live = append(cg.live, v)
	res := cg.emit(n.Body)
	cg.live = cg.live[:len(cg.live)-1]
	cg.st.Pop()
	return res
}

// emitCase lowers case dispatch: branches ordered by descending tag so
// the most specific class wins; each test checks tag containment in
// [tag, child_max_tag]; a void receiver aborts with file and line.
func (cg *CodeGen) emitCase(n *ast.Case) *myir.Operand {
	obj := cg.emit(n.Expr)
	result := cg.m.NewValue(myir.Pointer, "case")
	mergeB := cg.newBlock("case_merge")

	// void check
	okB := cg.newBlock("case_obj")
	abortB := cg.newBlock("case_void")
	isNotNull := cg.b.Not(cg.b.EQ(obj, cg.null()))
	cg.b.CondBr(isNotNull, okB, abortB)

	cg.b.SetCurrentBlock(abortB)
	file := cg.b.Move(cg.d.stringConst(cg.fileName()))
	cg.call(cg.rt.CaseAbort2, []*myir.Operand{file, cg.intImm(int64(n.Line))})
	cg.b.MoveTo(cg.null(), result)
	cg.b.Br(mergeB)

	cg.b.SetCurrentBlock(okB)
	tag := cg.b.Ld(myir.Int64, obj, cg.intImm(TagOffset))

	branches := append([]*ast.CaseBranch(nil), n.Branches...)
	sort.Slice(branches, func(i, j int) bool {
		return cg.kb.Klass(branches[i].DeclType).Tag > cg.kb.Klass(branches[j].DeclType).Tag
	})

	for _, br := range branches {
		k := cg.kb.Klass(br.DeclType)
		bodyB := cg.newBlock("case_body")
		nextB := cg.newBlock("case_next")

		// tag in [k.Tag, k.ChildMaxTag]
		tooSmall := cg.b.LT(tag, cg.intImm(int64(k.Tag)))
		inRangeB := cg.newBlock("case_lo")
		cg.b.CondBr(tooSmall, nextB, inRangeB)

		cg.b.SetCurrentBlock(inRangeB)
		tooBig := cg.b.GT(tag, cg.intImm(int64(k.ChildMaxTag)))
		cg.b.CondBr(tooBig, nextB, bodyB)

		cg.b.SetCurrentBlock(bodyB)
		cg.st.Push()
		cg.st.Add(br.Name, symtab.LocalSymbol(obj))
		cg.b.MoveTo(cg.emit(br.Body), result)
		cg.st.Pop()
		cg.b.Br(mergeB)

		cg.b.SetCurrentBlock(nextB)
	}

	// no branch matched
	cg.call(cg.rt.CaseAbort, []*myir.Operand{tag})
	cg.b.MoveTo(cg.null(), result)
	cg.b.Br(mergeB)

	cg.b.SetCurrentBlock(mergeB)
	return result
}

func (cg *CodeGen) fileName() string {
	if cg.cls != nil && cg.cls.Ast != nil {
		return cg.cls.Ast.FileName
	}
	return ""
}

// emitNewKnown allocates and initializes an instance of a known class.
func (cg *CodeGen) emitNewKnown(k *klass.Klass) *myir.Operand {
	args := []*myir.Operand{
		cg.intImm(int64(k.Tag)),
		cg.intImm(int64(k.SizeInBytes())),
		cg.b.Move(cg.d.dispTab(k.Name)),
	}
	obj := cg.call(cg.rt.GCAlloc, args)
	cg.live = append(cg.live, obj)
	cg.call(cg.d.initSym(k.Name), []*myir.Operand{obj})
	cg.live = cg.live[:len(cg.live)-1]
	return obj
}

func (cg *CodeGen) emitNew(n *ast.New) *myir.Operand {
	if n.TypeName != ast.SelfType {
		return cg.emitNewKnown(cg.kb.Klass(n.TypeName))
	}
	// new SELF_TYPE: clone the receiver's shape, then init through the
	// class-object table
	tag := cg.b.Ld(myir.Int64, cg.self, cg.intImm(TagOffset))
	size := cg.b.Ld(myir.Int64, cg.self, cg.intImm(SizeOffset))
	disp := cg.b.Ld(myir.Pointer, cg.self, cg.intImm(DispTabOffset))
	obj := cg.call(cg.rt.GCAlloc, []*myir.Operand{tag, size, disp})

	cg.d.classTables()
	objTab := cg.b.Move(cg.d.objTab)
	pairOffset := cg.b.Mul(tag, cg.intImm(2*WordSize))
	initOffset := cg.b.Add(pairOffset, cg.intImm(WordSize))
	initFn := cg.b.Ld(myir.Pointer, objTab, initOffset)
	cg.live = append(cg.live, obj)
	cg.callIndirect(myir.Void, initFn, []*myir.Operand{obj})
	cg.live = cg.live[:len(cg.live)-1]
	return obj
}

// emitDispatch lowers virtual and static dispatch behind the shared
// null check; NCE folds the check when the receiver is proven.
func (cg *CodeGen) emitDispatch(n *ast.Dispatch) *myir.Operand {
	args := make([]*myir.Operand, 0, len(n.Args)+1)
	for _, a := range n.Args {
		v := cg.emit(a)
		cg.live = append(cg.live, v)
		args = append(args, v)
	}
	recv := cg.emit(n.Receiver)
	cg.live = cg.live[:len(cg.live)-len(n.Args)]

	result := cg.m.NewValue(myir.Pointer, "ret")
	callB := cg.newBlock("dispatch")
	abortB := cg.newBlock("dispatch_void")
	mergeB := cg.newBlock("dispatch_merge")

	isNotNull := cg.b.Not(cg.b.EQ(recv, cg.null()))
	cg.b.CondBr(isNotNull, callB, abortB)

	cg.b.SetCurrentBlock(callB)
	lookupClass := n.Receiver.StaticType()
	if lookupClass == ast.SelfType {
		lookupClass = cg.cls.Name
	}
	callArgs := append([]*myir.Operand{recv}, args...)
	var res *myir.Operand
	if n.TypeAnnot != "" {
		k := cg.kb.Klass(n.TypeAnnot)
		res = cg.call(cg.m.GetFunction(k.MethodFullName(n.Method)), callArgs)
	} else {
		k := cg.kb.Klass(lookupClass)
		idx := k.MethodIndex(n.Method)
		dt := cg.b.Ld(myir.Pointer, recv, cg.intImm(DispTabOffset))
		fnp := cg.b.Ld(myir.Pointer, dt, cg.intImm(int64(idx*WordSize)))
		res = cg.callIndirect(myir.Pointer, fnp, callArgs)
	}
	cg.b.MoveTo(res, result)
	cg.b.Br(mergeB)

	cg.b.SetCurrentBlock(abortB)
	file := cg.b.Move(cg.d.stringConst(cg.fileName()))
	cg.call(cg.rt.DispatchAbort, []*myir.Operand{file, cg.intImm(int64(n.Line))})
	cg.b.MoveTo(cg.null(), result)
	cg.b.Br(mergeB)

	cg.b.SetCurrentBlock(mergeB)
	return result
}
