package pass

import "coolc/internal/myir"

// NCE removes null checks whose operand is proven non-null by sparse
// conditional propagation. The lattice is one bit per operand; seeds are
// the receiver parameter, moves of global constants and results of the
// allocation routine. A conditional branch guarding a proven check is
// deterministic: only the non-null successor stays executable.
type NCE struct {
	// AllocFunc is the allocation runtime symbol whose results are
	// known non-null.
	AllocFunc string
}

func (NCE) Name() string { return "nce" }

func (p NCE) Run(f *myir.Function) {
	notNull := map[*myir.Operand]bool{}
	p.gatherNotNulls(f, notNull)

	Propagate(f, func(inst *myir.Instruction, s *Sparse) {
		switch inst.Kind {
		case myir.PhiInst:
			// meet only over executable paths
			state := true
			for i, pred := range inst.Holder().Preds() {
				if !s.BlockVisited[pred] {
					continue
				}
				if i < len(inst.Uses()) {
					if u := inst.Uses()[i]; u == nil || !notNull[u] {
						state = false
					}
				}
			}
			if d := inst.Def(); d != nil && notNull[d] != state {
				notNull[d] = state
				s.PushUses(d)
			}
		case myir.CondBranchInst:
			if cmp := defOf(inst.Uses()[0]); cmp != nil {
				// the branch below a proven check is deterministic
				if inner := nullCheckOf(cmp); inner != nil && notNull[inner.Uses()[0]] {
					s.PushBlock(inst.Taken)
					return
				}
			}
			s.PushBlock(inst.Taken)
			s.PushBlock(inst.NotTaken)
		case myir.MoveInst:
			d := inst.Def()
			if !notNull[d] && notNull[inst.Uses()[0]] {
				notNull[d] = true
				s.PushUses(d)
			}
		}
	})

	p.eliminate(f, notNull)
	mergeBlocks(f)
}

func (p NCE) gatherNotNulls(f *myir.Function, notNull map[*myir.Operand]bool) {
	if len(f.Params()) > 0 {
		notNull[f.Params()[0]] = true // the receiver
	}
	for _, b := range f.CFG().ReversePostOrder() {
		for _, inst := range b.Insts() {
			switch inst.Kind {
			case myir.MoveInst:
				if inst.Uses()[0].Kind == myir.GlobalConstKind {
					notNull[inst.Def()] = true
				}
			case myir.CallInst:
				if d := inst.Def(); d != nil && inst.Uses()[0].Name == p.AllocFunc {
					notNull[d] = true
				}
			}
		}
	}
}

func defOf(o *myir.Operand) *myir.Instruction {
	if o == nil || len(o.Defs()) != 1 {
		return nil
	}
	return o.Defs()[0]
}

// isNullCheck reports an equality against the null constant.
func isNullCheck(inst *myir.Instruction) bool {
	if inst.Kind != myir.EQInst {
		return false
	}
	c := inst.Uses()[1]
	return c.Kind == myir.ConstantKind && c.Value == 0
}

// nullCheckOf peels the `not` the lowering places between the compare
// and the branch, returning the eq instruction.
func nullCheckOf(inst *myir.Instruction) *myir.Instruction {
	if inst.Kind == myir.NotInst {
		if eq := defOf(inst.Uses()[0]); eq != nil && isNullCheck(eq) {
			return eq
		}
	}
	return nil
}

func (p NCE) eliminate(f *myir.Function, notNull map[*myir.Operand]bool) {
	var checks []*myir.Instruction
	for _, b := range f.CFG().ReversePostOrder() {
		for _, inst := range b.Insts() {
			if isNullCheck(inst) && notNull[inst.Uses()[0]] {
				checks = append(checks, inst)
			}
		}
	}
	for _, c := range checks {
		p.eliminateCheck(f, c)
	}
}

// eliminateCheck rewrites the check-call-merge idiom
//
//	eq; not; condbr -> {call_block, abort_block} -> merge(phi)
//
// into a straight branch to the call block, replacing the merge phi
// with a move of the call path's value.
func (p NCE) eliminateCheck(f *myir.Function, check *myir.Instruction) {
	pred := check.Def()
	if len(pred.Uses()) != 1 || pred.Uses()[0].Kind != myir.NotInst {
		return
	}
	notInst := pred.Uses()[0]
	notDef := notInst.Def()
	if len(notDef.Uses()) != 1 || notDef.Uses()[0].Kind != myir.CondBranchInst {
		return
	}
	checkBlock := check.Holder()
	condbr := checkBlock.Terminator()
	if condbr == nil || condbr.Kind != myir.CondBranchInst || condbr != notDef.Uses()[0] {
		return
	}

	callBlock := condbr.Taken
	abortBlock := condbr.NotTaken
	if len(callBlock.Succs()) != 1 {
		return
	}
	merge := callBlock.Succs()[0]
	if len(abortBlock.Succs()) != 1 || abortBlock.Succs()[0] != merge {
		return
	}

	// a phi at the merge receives the call's value: turn it into a move
	if phis := merge.Phis(); len(phis) > 0 {
		phi := phis[0]
		idx := merge.PredIndex(callBlock)
		var retval *myir.Operand
		if idx >= 0 && idx < len(phi.Uses()) {
			retval = phi.Uses()[idx]
		}
		def := phi.Def()
		merge.Erase(phi)
		merge.Prepend(myir.NewMove(f.Module(), retval, def))
	}

	myir.Disconnect(checkBlock, abortBlock)
	myir.Disconnect(abortBlock, merge)

	checkBlock.Erase(condbr)
	checkBlock.Erase(notInst)
	checkBlock.Erase(check)

	// the edge to the call block survived the branch removal
	checkBlock.Append(myir.NewBranch(f.Module(), callBlock))
}

// mergeBlocks collapses straight-line chains left by branch folding: a
// block whose sole successor has it as its sole predecessor is fused
// with that successor.
func mergeBlocks(f *myir.Function) {
	for changed := true; changed; {
		changed = false
		for _, b := range f.CFG().ReversePostOrder() {
			t := b.Terminator()
			if t == nil || t.Kind != myir.BranchInst {
				continue
			}
			succ := t.Taken
			if succ == f.Entry() || len(succ.Preds()) != 1 {
				continue
			}
			// a single-pred phi is a move in disguise
			for _, phi := range append([]*myir.Instruction(nil), succ.Phis()...) {
				src := phi.Uses()[0]
				def := phi.Def()
				succ.Erase(phi)
				succ.Prepend(myir.NewMove(f.Module(), src, def))
			}
			myir.Disconnect(b, succ)
			b.Erase(t)
			for _, inst := range append([]*myir.Instruction(nil), succ.Insts()...) {
				succ.Detach(inst)
				b.Append(inst)
			}
			for _, s := range append([]*myir.Block(nil), succ.Succs()...) {
				myir.ReplacePred(s, succ, b)
			}
			changed = true
			break
		}
	}
}
