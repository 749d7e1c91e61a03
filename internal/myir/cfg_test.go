package myir

import "testing"

// diamond builds the classic if-else shape:
//
//	entry -> {left, right} -> merge
func diamond(t *testing.T) (*Module, *Function, *Builder, [4]*Block) {
	t.Helper()
	m := NewModule()
	f := m.NewFunction("f", Int64, []OperandType{Int64}, []string{"p"})
	b := NewBuilder(m)
	b.SetCurrentFunction(f)

	entry := b.NewBlock("entry")
	left := b.NewBlock("left")
	right := b.NewBlock("right")
	merge := b.NewBlock("merge")
	f.SetEntry(entry)

	b.SetCurrentBlock(entry)
	b.CondBr(f.Params()[0], left, right)
	b.SetCurrentBlock(left)
	b.Br(merge)
	b.SetCurrentBlock(right)
	b.Br(merge)
	b.SetCurrentBlock(merge)
	b.Ret(f.Params()[0])

	return m, f, b, [4]*Block{entry, left, right, merge}
}

func TestPostOrderCoversAllBlocks(t *testing.T) {
	_, f, _, blocks := diamond(t)
	po := f.CFG().PostOrder()
	if len(po) != 4 {
		t.Fatalf("post-order has %d blocks", len(po))
	}
	if po[len(po)-1] != blocks[0] {
		t.Errorf("entry must be last in post-order")
	}
	rpo := f.CFG().ReversePostOrder()
	if rpo[0] != blocks[0] {
		t.Errorf("entry must be first in reverse post-order")
	}
}

func TestDominance(t *testing.T) {
	_, f, _, blocks := diamond(t)
	entry, left, right, merge := blocks[0], blocks[1], blocks[2], blocks[3]
	idom := f.CFG().Dominance()

	if idom[left] != entry || idom[right] != entry {
		t.Errorf("arms must be dominated by entry")
	}
	if idom[merge] != entry {
		t.Errorf("idom(merge) = %s, want entry", idom[merge].Name())
	}
	cfg := f.CFG()
	if !cfg.Dominates(entry, merge) || cfg.Dominates(left, merge) {
		t.Errorf("dominance query wrong")
	}
}

// For every edge u->v, idom(v) must dominate u.
func TestDominanceEdgeInvariant(t *testing.T) {
	_, f, _, _ := diamond(t)
	cfg := f.CFG()
	idom := cfg.Dominance()
	for _, u := range cfg.ReversePostOrder() {
		for _, v := range u.Succs() {
			if v == f.Entry() {
				continue
			}
			if !cfg.Dominates(idom[v], u) {
				t.Errorf("idom(%s)=%s does not dominate pred %s", v.Name(), idom[v].Name(), u.Name())
			}
		}
	}
}

func TestDominanceFrontier(t *testing.T) {
	_, f, _, blocks := diamond(t)
	left, right, merge := blocks[1], blocks[2], blocks[3]
	df := f.CFG().DominanceFrontier()

	for _, b := range []*Block{left, right} {
		if len(df[b]) != 1 || df[b][0] != merge {
			t.Errorf("DF(%s) = %v, want {merge}", b.Name(), df[b])
		}
	}
	if len(df[merge]) != 0 {
		t.Errorf("DF(merge) = %v, want empty", df[merge])
	}
}

func TestLoopDominance(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("loop", Void, nil, nil)
	b := NewBuilder(m)
	b.SetCurrentFunction(f)

	entry := b.NewBlock("entry")
	head := b.NewBlock("head")
	body := b.NewBlock("body")
	exit := b.NewBlock("exit")
	f.SetEntry(entry)

	cond := m.NewValue(Int8, "c")
	b.SetCurrentBlock(entry)
	b.Br(head)
	b.SetCurrentBlock(head)
	b.CondBr(cond, body, exit)
	b.SetCurrentBlock(body)
	b.Br(head)
	b.SetCurrentBlock(exit)
	b.Ret(nil)

	idom := f.CFG().Dominance()
	if idom[body] != head || idom[exit] != head || idom[head] != entry {
		t.Errorf("loop idoms wrong: body<-%s exit<-%s head<-%s",
			idom[body].Name(), idom[exit].Name(), idom[head].Name())
	}
	df := f.CFG().DominanceFrontier()
	found := false
	for _, x := range df[body] {
		if x == head {
			found = true
		}
	}
	if !found {
		t.Errorf("DF(body) must contain the loop head, got %v", df[body])
	}
}

func TestUseDefSymmetry(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("g", Int64, []OperandType{Int64, Int64}, []string{"a", "b"})
	b := NewBuilder(m)
	b.SetCurrentFunction(f)
	entry := b.NewBlock("entry")
	f.SetEntry(entry)
	b.SetCurrentBlock(entry)

	x := b.Add(f.Params()[0], f.Params()[1])
	y := b.Mul(x, f.Params()[0])
	b.Ret(y)

	for _, blk := range f.Blocks() {
		for _, inst := range blk.Insts() {
			for _, u := range inst.Uses() {
				if u == nil {
					continue
				}
				if !containsInst(u.Uses(), inst) {
					t.Errorf("%s not in uses of its operand", inst)
				}
			}
			for _, d := range inst.Defs() {
				if !containsInst(d.Defs(), inst) {
					t.Errorf("%s not in defs of its def", inst)
				}
			}
		}
	}
}

func TestUpdateUseMovesBackLink(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("h", Int64, []OperandType{Int64, Int64}, []string{"a", "b"})
	b := NewBuilder(m)
	b.SetCurrentFunction(f)
	entry := b.NewBlock("entry")
	f.SetEntry(entry)
	b.SetCurrentBlock(entry)

	a0, a1 := f.Params()[0], f.Params()[1]
	x := b.Add(a0, a0)
	add := a0.Uses()[0]

	add.UpdateUse(0, a1)
	if containsInst(a1.Uses(), add) == false {
		t.Error("new operand missing the back-link")
	}
	// a0 is still used in slot 1
	if !containsInst(a0.Uses(), add) {
		t.Error("slot 1 link lost")
	}
	add.UpdateUse(1, a1)
	if containsInst(a0.Uses(), add) {
		t.Error("old operand keeps a stale back-link")
	}
	_ = x
}

func containsInst(s []*Instruction, i *Instruction) bool {
	for _, x := range s {
		if x == i {
			return true
		}
	}
	return false
}
