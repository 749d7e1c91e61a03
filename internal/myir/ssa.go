package myir

import "fmt"

// ConstructSSA puts every function of the module into SSA form.
func ConstructSSA(m *Module) {
	b := NewBuilder(m)
	for _, f := range m.Functions() {
		f.ConstructSSA(b)
	}
}

// ConstructSSA inserts phis at the iterated dominance frontier of every
// multiply-defined operand and then renames with the classical Cytron
// walk over the dominator tree.
func (f *Function) ConstructSSA(b *Builder) {
	if f.entry == nil {
		return // declared but not defined
	}
	defs := f.defsInBlocks()
	f.insertPhis(b, defs)
	f.rename(defs)
}

// defsInBlocks gathers, per operand defined two or more times, the set
// of blocks holding a definition.
func (f *Function) defsInBlocks() map[*Operand][]*Block {
	res := map[*Operand][]*Block{}
	for _, blk := range f.Blocks() {
		for _, inst := range blk.insts {
			for _, d := range inst.defs {
				if len(d.defs) < 2 {
					continue
				}
				blocks := res[d]
				if len(blocks) == 0 || blocks[len(blocks)-1] != blk {
					res[d] = append(blocks, blk)
				}
			}
		}
	}
	return res
}

// insertPhis runs the worklist algorithm over the iterated dominance
// frontier: starting from the def blocks of each variable, every
// frontier block that has not yet received a phi for it gets one.
func (f *Function) insertPhis(b *Builder, defs map[*Operand][]*Block) {
	df := f.CFG().DominanceFrontier()
	for v, blocks := range defs {
		inserted := map[*Block]bool{}
		isDefBlock := map[*Block]bool{}
		w := append([]*Block(nil), blocks...)
		for _, blk := range blocks {
			isDefBlock[blk] = true
		}
		for len(w) > 0 {
			x := w[0]
			w = w[1:]
			for _, y := range df[x] {
				if inserted[y] {
					continue
				}
				b.Phi(v, y)
				inserted[y] = true
				if !isDefBlock[y] {
					w = append(w, y)
				}
			}
		}
	}
}

func (f *Function) rename(defs map[*Operand][]*Block) {
	vars := map[*Operand]bool{}
	for v := range defs {
		vars[v] = true
	}
	stacks := map[*Operand][]*Operand{}
	counters := map[*Operand]int{}
	children := f.CFG().DomChildren()
	m := f.module

	fresh := func(v *Operand) *Operand {
		n := counters[v]
		counters[v] = n + 1
		name := v.Name
		if name == "" {
			name = fmt.Sprintf("v%d", v.id)
		}
		return m.NewValue(v.Type, fmt.Sprintf("%s.%d", name, n))
	}
	top := func(v *Operand) *Operand {
		s := stacks[v]
		if len(s) == 0 {
			return nil
		}
		return s[len(s)-1]
	}

	var walk func(blk *Block)
	walk = func(blk *Block) {
		var pushed []*Operand
		for _, inst := range blk.insts {
			if inst.Kind != PhiInst {
				for n, u := range inst.uses {
					if u != nil && vars[u] {
						if t := top(u); t != nil {
							inst.UpdateUse(n, t)
						}
					}
				}
			}
			for n, d := range inst.defs {
				if !vars[d] {
					continue
				}
				nv := fresh(d)
				inst.UpdateDef(n, nv)
				stacks[d] = append(stacks[d], nv)
				pushed = append(pushed, d)
			}
		}
		for _, s := range blk.succs {
			j := s.PredIndex(blk)
			for _, phi := range s.Phis() {
				if v := phi.PhiVar; v != nil && j < len(phi.uses) {
					phi.UpdateUse(j, top(v))
				}
			}
		}
		for _, ch := range children[blk] {
			walk(ch)
		}
		for _, v := range pushed {
			stacks[v] = stacks[v][:len(stacks[v])-1]
		}
	}
	walk(f.entry)
}
