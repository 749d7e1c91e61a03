package myir

// Builder appends instructions to a current block, maintaining the
// use-def links and, for branches, the CFG edges.
type Builder struct {
	module    *Module
	currBlock *Block
	currFunc  *Function
}

func NewBuilder(m *Module) *Builder {
	return &Builder{module: m}
}

func (b *Builder) Module() *Module { return b.module }

// NewBlock creates a fresh empty block owned by the current function.
func (b *Builder) NewBlock(name string) *Block {
	blk := &Block{id: b.module.nextBlockID, name: name, fn: b.currFunc}
	b.module.nextBlockID++
	return blk
}

func (b *Builder) SetCurrentFunction(f *Function) { b.currFunc = f }
func (b *Builder) SetCurrentBlock(blk *Block)     { b.currBlock = blk }
func (b *Builder) CurrentBlock() *Block           { return b.currBlock }
func (b *Builder) CurrentFunction() *Function     { return b.currFunc }

func (b *Builder) append(kind InstKind, defs, uses []*Operand) *Instruction {
	i := &Instruction{id: b.module.nextInstID, Kind: kind, defs: defs, uses: uses}
	b.module.nextInstID++
	i.link()
	b.currBlock.Append(i)
	return i
}

func (b *Builder) binary(kind InstKind, t OperandType, lhs, rhs *Operand) *Operand {
	res := b.module.NewValue(t, "")
	b.append(kind, []*Operand{res}, []*Operand{lhs, rhs})
	return res
}

func (b *Builder) unary(kind InstKind, t OperandType, o *Operand) *Operand {
	res := b.module.NewValue(t, "")
	b.append(kind, []*Operand{res}, []*Operand{o})
	return res
}

// Ld loads a value of type t from base+offset.
func (b *Builder) Ld(t OperandType, base, offset *Operand) *Operand {
	res := b.module.NewValue(t, "")
	b.append(LoadInst, []*Operand{res}, []*Operand{base, offset})
	return res
}

// St stores value to base+offset.
func (b *Builder) St(base, offset, value *Operand) {
	b.append(StoreInst, nil, []*Operand{base, offset, value})
}

// Call emits a call; the callee operand is use slot 0.
func (b *Builder) Call(f *Function, args []*Operand) *Operand {
	uses := append([]*Operand{b.module.FuncOperand(f)}, args...)
	if f.retType == Void {
		b.append(CallInst, nil, uses)
		return nil
	}
	res := b.module.NewValue(f.retType, "")
	b.append(CallInst, []*Operand{res}, uses)
	return res
}

// CallIndirect calls through a function-pointer value.
func (b *Builder) CallIndirect(ret OperandType, callee *Operand, args []*Operand) *Operand {
	uses := append([]*Operand{callee}, args...)
	if ret == Void {
		b.append(CallInst, nil, uses)
		return nil
	}
	res := b.module.NewValue(ret, "")
	b.append(CallInst, []*Operand{res}, uses)
	return res
}

// CondBr branches to taken when pred is non-zero, else to fallThrough,
// and connects both CFG edges.
func (b *Builder) CondBr(pred *Operand, taken, fallThrough *Block) {
	i := b.append(CondBranchInst, nil, []*Operand{pred})
	i.Taken = taken
	i.NotTaken = fallThrough
	Connect(b.currBlock, taken)
	Connect(b.currBlock, fallThrough)
}

// Br branches unconditionally and connects the CFG edge.
func (b *Builder) Br(target *Block) {
	i := b.append(BranchInst, nil, nil)
	i.Taken = target
	Connect(b.currBlock, target)
}

// Ret returns a value; pass nil for void.
func (b *Builder) Ret(v *Operand) {
	if v == nil {
		b.append(RetInst, nil, nil)
		return
	}
	b.append(RetInst, nil, []*Operand{v})
}

func (b *Builder) Add(lhs, rhs *Operand) *Operand { return b.binary(AddInst, lhs.Type, lhs, rhs) }
func (b *Builder) Sub(lhs, rhs *Operand) *Operand { return b.binary(SubInst, lhs.Type, lhs, rhs) }
func (b *Builder) Mul(lhs, rhs *Operand) *Operand { return b.binary(MulInst, lhs.Type, lhs, rhs) }
func (b *Builder) Div(lhs, rhs *Operand) *Operand { return b.binary(DivInst, lhs.Type, lhs, rhs) }
func (b *Builder) Shl(lhs, rhs *Operand) *Operand { return b.binary(ShlInst, lhs.Type, lhs, rhs) }
func (b *Builder) Or(lhs, rhs *Operand) *Operand  { return b.binary(OrInst, lhs.Type, lhs, rhs) }
func (b *Builder) Xor(lhs, rhs *Operand) *Operand { return b.binary(XorInst, lhs.Type, lhs, rhs) }

func (b *Builder) LT(lhs, rhs *Operand) *Operand { return b.binary(LTInst, Int8, lhs, rhs) }
func (b *Builder) LE(lhs, rhs *Operand) *Operand { return b.binary(LEInst, Int8, lhs, rhs) }
func (b *Builder) GT(lhs, rhs *Operand) *Operand { return b.binary(GTInst, Int8, lhs, rhs) }
func (b *Builder) EQ(lhs, rhs *Operand) *Operand { return b.binary(EQInst, Int8, lhs, rhs) }

func (b *Builder) Neg(o *Operand) *Operand { return b.unary(NegInst, o.Type, o) }
func (b *Builder) Not(o *Operand) *Operand { return b.unary(NotInst, o.Type, o) }

// Move copies src into a fresh value.
func (b *Builder) Move(src *Operand) *Operand { return b.unary(MoveInst, src.Type, src) }

// MoveTo copies src into dst; dst may be defined repeatedly before SSA
// construction.
func (b *Builder) MoveTo(src, dst *Operand) {
	b.append(MoveInst, []*Operand{dst}, []*Operand{src})
}

// NewMove builds a linked move instruction without appending it to any
// block; callers place it explicitly.
func NewMove(m *Module, src, dst *Operand) *Instruction {
	i := &Instruction{id: m.nextInstID, Kind: MoveInst, defs: []*Operand{dst}, uses: []*Operand{src}}
	m.nextInstID++
	i.link()
	return i
}

// NewLoad builds a linked load instruction without appending it.
func NewLoad(m *Module, result, base, offset *Operand) *Instruction {
	i := &Instruction{id: m.nextInstID, Kind: LoadInst, defs: []*Operand{result}, uses: []*Operand{base, offset}}
	m.nextInstID++
	i.link()
	return i
}

// NewBranch builds an unconnected branch instruction; used when the
// CFG edge to the target already exists.
func NewBranch(m *Module, target *Block) *Instruction {
	i := &Instruction{id: m.nextInstID, Kind: BranchInst}
	m.nextInstID++
	i.Taken = target
	return i
}

// Phi inserts an empty phi for variable v at the head of blk. Inputs are
// filled during SSA renaming, parallel to blk's predecessor order.
func (b *Builder) Phi(v *Operand, blk *Block) *Instruction {
	i := &Instruction{id: b.module.nextInstID, Kind: PhiInst, defs: []*Operand{v}, uses: make([]*Operand, len(blk.preds))}
	b.module.nextInstID++
	v.defedBy(i)
	i.PhiVar = v
	blk.Prepend(i)
	return i
}
