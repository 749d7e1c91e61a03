package myir

// Block is an ordered instruction list with predecessor and successor
// edges. A well-formed block has exactly one terminator at the end and
// phis only at its head.
type Block struct {
	id    int
	name  string
	insts []*Instruction
	preds []*Block
	succs []*Block
	fn    *Function

	// traversal state
	visited bool
	po      int // post-order number, the dominance algorithm's currency
}

func (b *Block) ID() int                  { return b.id }
func (b *Block) Name() string             { return b.name }
func (b *Block) Insts() []*Instruction    { return b.insts }
func (b *Block) Preds() []*Block          { return b.preds }
func (b *Block) Succs() []*Block          { return b.succs }
func (b *Block) Func() *Function          { return b.fn }
func (b *Block) PostOrder() int           { return b.po }

func (b *Block) Append(i *Instruction) {
	i.block = b
	b.insts = append(b.insts, i)
}

// Prepend inserts at the block head; used for phi insertion.
func (b *Block) Prepend(i *Instruction) {
	i.block = b
	b.insts = append([]*Instruction{i}, b.insts...)
}

// Terminator returns the final instruction if it terminates the block.
func (b *Block) Terminator() *Instruction {
	if len(b.insts) == 0 {
		return nil
	}
	last := b.insts[len(b.insts)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// Phis returns the phi prefix of the block.
func (b *Block) Phis() []*Instruction {
	for i, in := range b.insts {
		if in.Kind != PhiInst {
			return b.insts[:i]
		}
	}
	return b.insts
}

// Erase removes the instruction from the block and detaches its
// operand links.
func (b *Block) Erase(i *Instruction) {
	i.unlink()
	for n, x := range b.insts {
		if x == i {
			b.insts = append(b.insts[:n], b.insts[n+1:]...)
			break
		}
	}
	i.block = nil
}

// ReplaceInst swaps old for new at the same position. The old
// instruction is always unlinked from its uses and defs; callers build
// new fully linked.
func (b *Block) ReplaceInst(old, new *Instruction) {
	for n, x := range b.insts {
		if x == old {
			old.unlink()
			new.block = b
			b.insts[n] = new
			return
		}
	}
}

// Detach removes the instruction from the block while keeping its
// operand links; used when moving instructions between blocks.
func (b *Block) Detach(i *Instruction) {
	for n, x := range b.insts {
		if x == i {
			b.insts = append(b.insts[:n], b.insts[n+1:]...)
			break
		}
	}
	i.block = nil
}

// PredIndex returns the position of p in the predecessor list.
func (b *Block) PredIndex(p *Block) int {
	for i, x := range b.preds {
		if x == p {
			return i
		}
	}
	return -1
}

// Connect adds the pred -> succ edge.
func Connect(pred, succ *Block) {
	pred.succs = append(pred.succs, succ)
	succ.preds = append(succ.preds, pred)
	if pred.fn != nil {
		pred.fn.invalidateCFG()
	}
}

// ReplacePred rewires b's edge from oldPred to newPred in place, so
// phi input positions stay aligned with the predecessor order.
func ReplacePred(b, oldPred, newPred *Block) {
	for i, p := range b.preds {
		if p == oldPred {
			b.preds[i] = newPred
			break
		}
	}
	oldPred.succs = dropBlock(oldPred.succs, b)
	newPred.succs = append(newPred.succs, b)
	if b.fn != nil {
		b.fn.invalidateCFG()
	}
}

func dropBlock(s []*Block, b *Block) []*Block {
	for i, x := range s {
		if x == b {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Disconnect removes the pred -> succ edge and the corresponding phi
// inputs in succ.
func Disconnect(pred, succ *Block) {
	idx := succ.PredIndex(pred)
	for i, x := range pred.succs {
		if x == succ {
			pred.succs = append(pred.succs[:i], pred.succs[i+1:]...)
			break
		}
	}
	if idx >= 0 {
		succ.preds = append(succ.preds[:idx], succ.preds[idx+1:]...)
		for _, phi := range succ.Phis() {
			if idx < len(phi.uses) {
				phi.UpdateUse(idx, nil)
				phi.uses = append(phi.uses[:idx], phi.uses[idx+1:]...)
			}
		}
	}
	if pred.fn != nil {
		pred.fn.invalidateCFG()
	}
}
