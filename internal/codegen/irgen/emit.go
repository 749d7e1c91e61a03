package irgen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"coolc/internal/myir"
)

// Emitter translates the optimized myir module into LLVM IR and renders
// it as .ll text; the system toolchain takes it from there.
type Emitter struct {
	src *myir.Module
	out *ir.Module

	funcs   map[string]*ir.Func
	globals map[string]*ir.Global
	gtypes  map[string]*types.StructType

	// per-function state
	values map[*myir.Operand]value.Value
	blocks map[*myir.Block]*ir.Block
	phis   []pendingPhi
}

type pendingPhi struct {
	phi  *ir.InstPhi
	src  *myir.Instruction
	blk  *myir.Block
}

func NewEmitter(src *myir.Module) *Emitter {
	return &Emitter{
		src:     src,
		out:     ir.NewModule(),
		funcs:   map[string]*ir.Func{},
		globals: map[string]*ir.Global{},
		gtypes:  map[string]*types.StructType{},
	}
}

// Emit produces the .ll text.
func (e *Emitter) Emit() string {
	for _, g := range e.src.Constants() {
		e.declareGlobal(g, true)
	}
	for _, g := range e.src.Variables() {
		e.declareGlobal(g, false)
	}
	for _, f := range e.src.Functions() {
		e.declareFunc(f)
	}
	for _, g := range e.src.Constants() {
		e.defineGlobal(g)
	}
	for _, g := range e.src.Variables() {
		e.defineGlobal(g)
	}
	for _, f := range e.src.Functions() {
		if f.Entry() != nil {
			e.defineFunc(f)
		}
	}
	return e.out.String()
}

func llType(t myir.OperandType) types.Type {
	switch t {
	case myir.Pointer:
		return types.I8Ptr
	case myir.Int8:
		return types.I1
	case myir.Int32, myir.UInt32:
		return types.I32
	case myir.Void:
		return types.Void
	default:
		return types.I64
	}
}

// declareGlobal registers the symbol with its struct type; contents are
// filled in defineGlobal so cross-references resolve.
func (e *Emitter) declareGlobal(g *myir.Operand, ro bool) {
	var fields []types.Type
	for _, in := range g.Inits {
		if in.Ref != nil {
			fields = append(fields, types.I8Ptr)
		} else {
			fields = append(fields, types.I64)
		}
	}
	if len(g.Bytes) > 0 {
		fields = append(fields, types.NewArray(uint64(len(g.Bytes)), types.I8))
	}
	st := types.NewStruct(fields...)
	def := e.out.NewGlobal(g.Name, st)
	def.Immutable = ro
	e.globals[g.Name] = def
	e.gtypes[g.Name] = st
}

func (e *Emitter) defineGlobal(g *myir.Operand) {
	def := e.globals[g.Name]
	st := e.gtypes[g.Name]
	var fields []constant.Constant
	for _, in := range g.Inits {
		if in.Ref != nil {
			fields = append(fields, e.symbolAddr(in.Ref))
		} else {
			fields = append(fields, constant.NewInt(types.I64, in.Value))
		}
	}
	if len(g.Bytes) > 0 {
		fields = append(fields, constant.NewCharArray(g.Bytes))
	}
	def.Init = constant.NewStruct(st, fields...)
}

// symbolAddr yields the i8* address of a referenced symbol. Constant
// descriptors are addressed past their leading -1 mark word.
func (e *Emitter) symbolAddr(o *myir.Operand) constant.Constant {
	switch o.Kind {
	case myir.FuncKind:
		return constant.NewBitCast(e.funcs[o.Name], types.I8Ptr)
	default:
		def := e.globals[o.Name]
		if def == nil {
			return constant.NewNull(types.I8Ptr)
		}
		if o.BaseSkip > 0 {
			gep := constant.NewGetElementPtr(e.gtypes[o.Name], def,
				constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(o.BaseSkip)))
			return constant.NewBitCast(gep, types.I8Ptr)
		}
		return constant.NewBitCast(def, types.I8Ptr)
	}
}

func (e *Emitter) declareFunc(f *myir.Function) {
	var params []*ir.Param
	for _, p := range f.Params() {
		params = append(params, ir.NewParam(p.Name, llType(p.Type)))
	}
	def := e.out.NewFunc(f.Name(), llType(f.RetType()), params...)
	e.funcs[f.Name()] = def
}

func (e *Emitter) defineFunc(f *myir.Function) {
	def := e.funcs[f.Name()]
	e.values = map[*myir.Operand]value.Value{}
	e.blocks = map[*myir.Block]*ir.Block{}
	e.phis = nil

	for i, p := range f.Params() {
		e.values[p] = def.Params[i]
	}
	order := f.CFG().ReversePostOrder()
	for _, b := range order {
		e.blocks[b] = def.NewBlock(fmt.Sprintf("%s.%d", b.Name(), b.ID()))
	}
	for _, b := range order {
		e.emitBlock(b)
	}
	// fill phi incomings once every def is mapped
	for _, p := range e.phis {
		for i, pred := range p.blk.Preds() {
			var in value.Value = constant.NewNull(types.I8Ptr)
			if i < len(p.src.Uses()) && p.src.Uses()[i] != nil {
				in = e.valueOf(p.src.Uses()[i], llType(p.src.Def().Type))
			}
			p.phi.Incs = append(p.phi.Incs, ir.NewIncoming(in, e.blocks[pred]))
		}
	}
}

// valueOf maps an operand into an llvm value of the wanted type.
func (e *Emitter) valueOf(o *myir.Operand, want types.Type) value.Value {
	var v value.Value
	switch o.Kind {
	case myir.ConstantKind:
		if types.Equal(want, types.I8Ptr) {
			if o.Value == 0 {
				return constant.NewNull(types.I8Ptr)
			}
			return constant.NewIntToPtr(constant.NewInt(types.I64, o.Value), types.I8Ptr)
		}
		if it, ok := want.(*types.IntType); ok {
			return constant.NewInt(it, o.Value)
		}
		return constant.NewInt(types.I64, o.Value)
	case myir.GlobalConstKind, myir.GlobalVarKind:
		return e.symbolAddr(o)
	case myir.FuncKind:
		return constant.NewBitCast(e.funcs[o.Name], types.I8Ptr)
	default:
		v = e.values[o]
	}
	if v == nil {
		v = constant.NewNull(types.I8Ptr)
	}
	return v
}

func (e *Emitter) emitBlock(b *myir.Block) {
	blk := e.blocks[b]
	for _, inst := range b.Insts() {
		e.emitInst(blk, b, inst)
	}
}

func (e *Emitter) emitInst(blk *ir.Block, b *myir.Block, inst *myir.Instruction) {
	uses := inst.Uses()
	switch inst.Kind {
	case myir.PhiInst:
		phi := &ir.InstPhi{Typ: llType(inst.Def().Type)}
		blk.Insts = append(blk.Insts, phi)
		e.values[inst.Def()] = phi
		e.phis = append(e.phis, pendingPhi{phi: phi, src: inst, blk: b})

	case myir.MoveInst:
		// a move is pure renaming after SSA construction
		e.values[inst.Def()] = e.valueOf(uses[0], llType(inst.Def().Type))

	case myir.LoadInst:
		base := e.valueOf(uses[0], types.I8Ptr)
		off := e.valueOf(uses[1], types.I64)
		addr := blk.NewGetElementPtr(types.I8, base, off)
		t := llType(inst.Def().Type)
		cast := blk.NewBitCast(addr, types.NewPointer(t))
		e.values[inst.Def()] = blk.NewLoad(t, cast)

	case myir.StoreInst:
		base := e.valueOf(uses[0], types.I8Ptr)
		off := e.valueOf(uses[1], types.I64)
		v := e.valueOf(uses[2], llType(uses[2].Type))
		addr := blk.NewGetElementPtr(types.I8, base, off)
		cast := blk.NewBitCast(addr, types.NewPointer(v.Type()))
		blk.NewStore(v, cast)

	case myir.BranchInst:
		blk.NewBr(e.blocks[inst.Taken])

	case myir.CondBranchInst:
		pred := e.valueOf(uses[0], llType(uses[0].Type))
		cond := pred
		if !types.Equal(pred.Type(), types.I1) {
			if types.Equal(pred.Type(), types.I8Ptr) {
				cond = blk.NewICmp(enum.IPredNE, pred, constant.NewNull(types.I8Ptr))
			} else {
				cond = blk.NewICmp(enum.IPredNE, pred, constant.NewInt(types.I64, 0))
			}
		}
		blk.NewCondBr(cond, e.blocks[inst.Taken], e.blocks[inst.NotTaken])

	case myir.RetInst:
		if len(uses) == 0 {
			blk.NewRet(nil)
		} else {
			blk.NewRet(e.valueOf(uses[0], llType(uses[0].Type)))
		}

	case myir.CallInst:
		e.emitCall(blk, inst)

	case myir.AddInst, myir.SubInst, myir.MulInst, myir.DivInst,
		myir.ShlInst, myir.OrInst, myir.XorInst:
		l := e.valueOf(uses[0], types.I64)
		r := e.valueOf(uses[1], types.I64)
		var v value.Value
		switch inst.Kind {
		case myir.AddInst:
			v = blk.NewAdd(l, r)
		case myir.SubInst:
			v = blk.NewSub(l, r)
		case myir.MulInst:
			v = blk.NewMul(l, r)
		case myir.DivInst:
			v = blk.NewSDiv(l, r)
		case myir.ShlInst:
			v = blk.NewShl(l, r)
		case myir.OrInst:
			v = blk.NewOr(l, r)
		case myir.XorInst:
			v = blk.NewXor(l, r)
		}
		e.values[inst.Def()] = v

	case myir.LTInst, myir.LEInst, myir.GTInst, myir.EQInst:
		t := llType(uses[0].Type)
		l := e.valueOf(uses[0], t)
		r := e.valueOf(uses[1], l.Type())
		var pred enum.IPred
		switch inst.Kind {
		case myir.LTInst:
			pred = enum.IPredSLT
		case myir.LEInst:
			pred = enum.IPredSLE
		case myir.GTInst:
			pred = enum.IPredSGT
		case myir.EQInst:
			pred = enum.IPredEQ
		}
		e.values[inst.Def()] = blk.NewICmp(pred, l, r)

	case myir.NegInst:
		v := e.valueOf(uses[0], types.I64)
		e.values[inst.Def()] = blk.NewSub(constant.NewInt(types.I64, 0), v)

	case myir.NotInst:
		v := e.valueOf(uses[0], llType(uses[0].Type))
		if types.Equal(v.Type(), types.I1) {
			e.values[inst.Def()] = blk.NewXor(v, constant.True)
		} else {
			e.values[inst.Def()] = blk.NewXor(v, constant.NewInt(types.I64, 1))
		}
	}
}

func (e *Emitter) emitCall(blk *ir.Block, inst *myir.Instruction) {
	uses := inst.Uses()
	callee := uses[0]
	var args []value.Value
	for _, a := range uses[1:] {
		args = append(args, e.valueOf(a, llType(a.Type)))
	}

	var res value.Value
	if callee.Kind == myir.FuncKind {
		res = blk.NewCall(e.funcs[callee.Name], args...)
	} else {
		// indirect: cast the loaded pointer to the target signature
		ret := types.Type(types.I8Ptr)
		if inst.Def() == nil {
			ret = types.Void
		}
		var ptypes []types.Type
		for _, a := range args {
			ptypes = append(ptypes, a.Type())
		}
		ft := types.NewFunc(ret, ptypes...)
		fp := blk.NewBitCast(e.valueOf(callee, types.I8Ptr), types.NewPointer(ft))
		res = blk.NewCall(fp, args...)
	}
	if inst.Def() != nil {
		e.values[inst.Def()] = res
	}
}
