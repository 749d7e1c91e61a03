package myir

import "testing"

// buildMultiDef lowers the shape of `x <- p ? a : b; use x` before SSA:
// one variable with a definition in each arm.
func buildMultiDef(t *testing.T) (*Module, *Function, [4]*Block, *Operand) {
	t.Helper()
	m := NewModule()
	f := m.NewFunction("f", Int64, []OperandType{Int8}, []string{"p"})
	b := NewBuilder(m)
	b.SetCurrentFunction(f)

	entry := b.NewBlock("entry")
	left := b.NewBlock("left")
	right := b.NewBlock("right")
	merge := b.NewBlock("merge")
	f.SetEntry(entry)

	x := m.NewValue(Int64, "x")

	b.SetCurrentBlock(entry)
	b.MoveTo(m.NewConstant(Int64, 0), x)
	b.CondBr(f.Params()[0], left, right)

	b.SetCurrentBlock(left)
	b.MoveTo(m.NewConstant(Int64, 1), x)
	b.Br(merge)

	b.SetCurrentBlock(right)
	b.MoveTo(m.NewConstant(Int64, 2), x)
	b.Br(merge)

	b.SetCurrentBlock(merge)
	ret := b.Add(x, m.NewConstant(Int64, 10))
	b.Ret(ret)

	return m, f, [4]*Block{entry, left, right, merge}, x
}

func TestSSAInsertsPhiAtJoin(t *testing.T) {
	m, f, blocks, _ := buildMultiDef(t)
	f.ConstructSSA(NewBuilder(m))

	merge := blocks[3]
	phis := merge.Phis()
	if len(phis) != 1 {
		t.Fatalf("expected exactly one phi at the join, got %d", len(phis))
	}
	phi := phis[0]
	if len(phi.Uses()) != len(merge.Preds()) {
		t.Fatalf("phi arity %d, preds %d", len(phi.Uses()), len(merge.Preds()))
	}
	// phi inputs parallel the predecessor order
	for i, pred := range merge.Preds() {
		in := phi.Uses()[i]
		if in == nil {
			t.Fatalf("phi input %d (from %s) unset", i, pred.Name())
		}
	}
}

func TestSSASingleDefInvariant(t *testing.T) {
	m, f, _, _ := buildMultiDef(t)
	f.ConstructSSA(NewBuilder(m))

	for _, blk := range f.Blocks() {
		for _, inst := range blk.Insts() {
			for _, d := range inst.Defs() {
				if len(d.Defs()) != 1 {
					t.Errorf("operand %s has %d defs after SSA", d, len(d.Defs()))
				}
			}
		}
	}
}

func TestSSAUsesDominatedByDefs(t *testing.T) {
	m, f, _, _ := buildMultiDef(t)
	f.ConstructSSA(NewBuilder(m))
	cfg := f.CFG()

	for _, blk := range f.Blocks() {
		for _, inst := range blk.Insts() {
			if inst.Kind == PhiInst {
				continue
			}
			for _, u := range inst.Uses() {
				if u == nil || u.Kind != ValueKind || len(u.Defs()) == 0 {
					continue
				}
				defBlk := u.Defs()[0].Holder()
				if defBlk == nil {
					continue // parameter
				}
				if !cfg.Dominates(defBlk, blk) {
					t.Errorf("use of %s in %s not dominated by def in %s",
						u, blk.Name(), defBlk.Name())
				}
			}
		}
	}
}

func TestSSAEntryOnlyVariableGetsNoPhi(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("g", Int64, nil, nil)
	b := NewBuilder(m)
	b.SetCurrentFunction(f)
	entry := b.NewBlock("entry")
	next := b.NewBlock("next")
	f.SetEntry(entry)

	x := m.NewValue(Int64, "x")
	b.SetCurrentBlock(entry)
	b.MoveTo(m.NewConstant(Int64, 1), x)
	b.Br(next)
	b.SetCurrentBlock(next)
	b.Ret(x)

	f.ConstructSSA(b)
	for _, blk := range f.Blocks() {
		if len(blk.Phis()) != 0 {
			t.Errorf("single-def variable must not get a phi")
		}
	}
}

func TestSSALoopVariable(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("loop", Int64, []OperandType{Int8}, []string{"p"})
	b := NewBuilder(m)
	b.SetCurrentFunction(f)

	entry := b.NewBlock("entry")
	head := b.NewBlock("head")
	body := b.NewBlock("body")
	exit := b.NewBlock("exit")
	f.SetEntry(entry)

	i := m.NewValue(Int64, "i")
	b.SetCurrentBlock(entry)
	b.MoveTo(m.NewConstant(Int64, 0), i)
	b.Br(head)

	b.SetCurrentBlock(head)
	b.CondBr(f.Params()[0], body, exit)

	b.SetCurrentBlock(body)
	next := b.Add(i, m.NewConstant(Int64, 1))
	b.MoveTo(next, i)
	b.Br(head)

	b.SetCurrentBlock(exit)
	b.Ret(i)

	f.ConstructSSA(b)

	phis := head.Phis()
	if len(phis) != 1 {
		t.Fatalf("loop head needs exactly one phi, got %d", len(phis))
	}
	if len(phis[0].Uses()) != 2 {
		t.Fatalf("loop phi needs two inputs, got %d", len(phis[0].Uses()))
	}
}
