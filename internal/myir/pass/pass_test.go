package pass

import (
	"testing"

	"coolc/internal/myir"
)

func countKind(f *myir.Function, kind myir.InstKind) int {
	n := 0
	for _, b := range f.CFG().ReversePostOrder() {
		for _, inst := range b.Insts() {
			if inst.Kind == kind {
				n++
			}
		}
	}
	return n
}

func countInsts(f *myir.Function) int {
	n := 0
	for _, b := range f.CFG().ReversePostOrder() {
		n += len(b.Insts())
	}
	return n
}

func TestDIERemovesUnusedChain(t *testing.T) {
	m := myir.NewModule()
	f := m.NewFunction("f", myir.Int64, []myir.OperandType{myir.Int64}, []string{"a"})
	b := myir.NewBuilder(m)
	b.SetCurrentFunction(f)
	entry := b.NewBlock("entry")
	f.SetEntry(entry)
	b.SetCurrentBlock(entry)

	// dead chain: the mul feeds only the unused add
	x := b.Mul(f.Params()[0], m.NewConstant(myir.Int64, 2))
	_ = b.Add(x, m.NewConstant(myir.Int64, 1))
	live := b.Sub(f.Params()[0], m.NewConstant(myir.Int64, 3))
	b.Ret(live)

	DIE{}.Run(f)

	if n := countKind(f, myir.AddInst); n != 0 {
		t.Errorf("dead add survived")
	}
	if n := countKind(f, myir.MulInst); n != 0 {
		t.Errorf("dead mul feeding only dead code survived")
	}
	if n := countKind(f, myir.SubInst); n != 1 {
		t.Errorf("live sub erased")
	}
}

func TestDIEKeepsStoresAndCalls(t *testing.T) {
	m := myir.NewModule()
	callee := m.NewFunction("g", myir.Int64, nil, nil)
	f := m.NewFunction("f", myir.Void, []myir.OperandType{myir.Pointer}, []string{"p"})
	b := myir.NewBuilder(m)
	b.SetCurrentFunction(f)
	entry := b.NewBlock("entry")
	f.SetEntry(entry)
	b.SetCurrentBlock(entry)

	b.St(f.Params()[0], m.NewConstant(myir.Int64, 0), m.NewConstant(myir.Int64, 7))
	b.Call(callee, nil) // result unused, still side-effecting
	b.Ret(nil)

	before := countInsts(f)
	DIE{}.Run(f)
	if after := countInsts(f); after != before {
		t.Errorf("DIE erased a store or call: %d -> %d", before, after)
	}
}

func TestDIENeverIncreases(t *testing.T) {
	m := myir.NewModule()
	f := m.NewFunction("f", myir.Int64, []myir.OperandType{myir.Int64}, []string{"a"})
	b := myir.NewBuilder(m)
	b.SetCurrentFunction(f)
	entry := b.NewBlock("entry")
	f.SetEntry(entry)
	b.SetCurrentBlock(entry)
	v := b.Add(f.Params()[0], f.Params()[0])
	b.Ret(v)

	before := countInsts(f)
	DIE{}.Run(f)
	if after := countInsts(f); after > before {
		t.Errorf("DIE increased the instruction count: %d -> %d", before, after)
	}
}

// buildNullCheck lowers the dispatch idiom around a receiver known to
// be non-null:
//
//	check: eq; not; condbr -> {call, abort} -> merge(phi)
func buildNullCheck(t *testing.T, m *myir.Module, recvFromAlloc bool) (*myir.Function, *myir.Block) {
	t.Helper()
	alloc := m.GetFunction("_gc_alloc")
	if alloc == nil {
		alloc = m.NewFunction("_gc_alloc", myir.Pointer,
			[]myir.OperandType{myir.Int64, myir.Int64, myir.Pointer}, []string{"t", "s", "d"})
	}
	callee := m.GetFunction("callee")
	if callee == nil {
		callee = m.NewFunction("callee", myir.Pointer, []myir.OperandType{myir.Pointer}, []string{"self"})
	}
	abort := m.GetFunction("_dispatch_abort")
	if abort == nil {
		abort = m.NewFunction("_dispatch_abort", myir.Void, []myir.OperandType{myir.Pointer, myir.Int64}, []string{"f", "l"})
	}

	f := m.NewFunction("test", myir.Pointer, []myir.OperandType{myir.Pointer}, []string{"self"})
	b := myir.NewBuilder(m)
	b.SetCurrentFunction(f)

	check := b.NewBlock("check")
	call := b.NewBlock("call")
	abrt := b.NewBlock("abort")
	merge := b.NewBlock("merge")
	f.SetEntry(check)

	b.SetCurrentBlock(check)
	var recv *myir.Operand
	if recvFromAlloc {
		recv = b.Call(alloc, []*myir.Operand{
			m.NewConstant(myir.Int64, 1), m.NewConstant(myir.Int64, 48), m.NewConstant(myir.Pointer, 0)})
	} else {
		recv = b.Ld(myir.Pointer, f.Params()[0], m.NewConstant(myir.Int64, 32))
	}
	result := m.NewValue(myir.Pointer, "res")
	isNotNull := b.Not(b.EQ(recv, m.NewConstant(myir.Pointer, 0)))
	b.CondBr(isNotNull, call, abrt)

	b.SetCurrentBlock(call)
	r := b.Call(callee, []*myir.Operand{recv})
	b.MoveTo(r, result)
	b.Br(merge)

	b.SetCurrentBlock(abrt)
	b.Call(abort, []*myir.Operand{m.NewConstant(myir.Pointer, 0), m.NewConstant(myir.Int64, 1)})
	b.MoveTo(m.NewConstant(myir.Pointer, 0), result)
	b.Br(merge)

	b.SetCurrentBlock(merge)
	b.Ret(result)

	return f, merge
}

func TestNCEFoldsProvenCheck(t *testing.T) {
	m := myir.NewModule()
	f, _ := buildNullCheck(t, m, true)
	f.ConstructSSA(myir.NewBuilder(m))

	if countKind(f, myir.EQInst) != 1 {
		t.Fatalf("expected the null check before NCE")
	}
	NCE{AllocFunc: "_gc_alloc"}.Run(f)

	if n := countKind(f, myir.EQInst); n != 0 {
		t.Errorf("proven null check survived")
	}
	if n := countKind(f, myir.CondBranchInst); n != 0 {
		t.Errorf("deterministic branch survived")
	}
	if n := countKind(f, myir.PhiInst); n != 0 {
		t.Errorf("merge phi should have collapsed to a move")
	}
	// the abort block is unreachable now
	for _, blk := range f.Blocks() {
		for _, inst := range blk.Insts() {
			if inst.Kind == myir.CallInst && inst.Uses()[0].Name == "_dispatch_abort" {
				t.Errorf("abort path still reachable")
			}
		}
	}
}

func TestNCEKeepsUnprovenCheck(t *testing.T) {
	m := myir.NewModule()
	f, _ := buildNullCheck(t, m, false)
	f.ConstructSSA(myir.NewBuilder(m))

	NCE{AllocFunc: "_gc_alloc"}.Run(f)

	if n := countKind(f, myir.EQInst); n != 1 {
		t.Errorf("check on an unproven operand must stay, got %d eqs", n)
	}
	if n := countKind(f, myir.CondBranchInst); n != 1 {
		t.Errorf("branch must stay")
	}
}

func TestSparsePropagationVisitsOnlyReachable(t *testing.T) {
	m := myir.NewModule()
	f := m.NewFunction("f", myir.Int64, []myir.OperandType{myir.Int8}, []string{"p"})
	b := myir.NewBuilder(m)
	b.SetCurrentFunction(f)

	entry := b.NewBlock("entry")
	dead := b.NewBlock("dead")
	live := b.NewBlock("live")
	f.SetEntry(entry)

	b.SetCurrentBlock(entry)
	b.Br(live)
	b.SetCurrentBlock(live)
	b.Ret(m.NewConstant(myir.Int64, 0))
	b.SetCurrentBlock(dead)
	b.Ret(m.NewConstant(myir.Int64, 1))

	visited := map[*myir.Block]bool{}
	Propagate(f, func(inst *myir.Instruction, s *Sparse) {
		visited[inst.Holder()] = true
	})
	if visited[dead] {
		t.Errorf("unreachable block visited")
	}
	if !visited[entry] || !visited[live] {
		t.Errorf("reachable blocks skipped")
	}
}

func TestUnboxingDeletesLocalBox(t *testing.T) {
	m := myir.NewModule()
	alloc := m.NewFunction("_gc_alloc", myir.Pointer,
		[]myir.OperandType{myir.Int64, myir.Int64, myir.Pointer}, []string{"t", "s", "d"})
	init := m.NewFunction("Int_init", myir.Void, []myir.OperandType{myir.Pointer}, []string{"self"})

	f := m.NewFunction("f", myir.Int64, nil, nil)
	b := myir.NewBuilder(m)
	b.SetCurrentFunction(f)
	entry := b.NewBlock("entry")
	f.SetEntry(entry)
	b.SetCurrentBlock(entry)

	// boxed constant 5: move of a primitive global constant
	c5 := m.NewGlobalConstant("int_const5", []myir.GlobalInit{
		{Value: -1}, {Value: 0}, {Value: 1}, {Value: 40}, {Value: 0}, {Value: 5},
	}, nil)
	c5.Prim = myir.PrimInt
	c5.BaseSkip = 1
	box := b.Move(c5)
	val := b.Ld(myir.Int64, box, m.NewConstant(myir.Int64, 32))

	// store the payload into a fresh box that never escapes
	newBox := b.Call(alloc, []*myir.Operand{
		m.NewConstant(myir.Int64, 1), m.NewConstant(myir.Int64, 40), m.NewConstant(myir.Pointer, 0)})
	b.Call(init, []*myir.Operand{newBox})
	b.St(newBox, m.NewConstant(myir.Int64, 32), val)
	b.Ret(val)

	Unboxing{FieldOffset: 32, InitSuffix: "_init"}.Run(f)

	if n := countKind(f, myir.StoreInst); n != 0 {
		t.Errorf("store into a non-escaping box survived")
	}
	allocCalls := 0
	for _, blk := range f.Blocks() {
		for _, inst := range blk.Insts() {
			if inst.Kind == myir.CallInst && inst.Uses()[0].Name == "_gc_alloc" {
				allocCalls++
			}
		}
	}
	if allocCalls != 0 {
		t.Errorf("allocation of a non-escaping box survived")
	}
}
