package pass

import "coolc/internal/myir"

// Sparse is the shared sparse conditional data-flow state: a CFG
// worklist seeded with the entry block, an SSA worklist of instructions
// to revisit, and the executable-block vector. A block becomes
// executable only when a taken branch reaches it.
type Sparse struct {
	fn           *myir.Function
	cfgWorklist  []*myir.Block
	ssaWorklist  []*myir.Instruction
	BlockVisited map[*myir.Block]bool
}

// Visitor inspects one instruction, updates the pass's lattice, and
// pushes affected uses or newly-executable successors.
type Visitor func(inst *myir.Instruction, s *Sparse)

// PushBlock marks a successor as reachable.
func (s *Sparse) PushBlock(b *myir.Block) {
	s.cfgWorklist = append(s.cfgWorklist, b)
}

// PushUses queues every instruction reading o for revisiting.
func (s *Sparse) PushUses(o *myir.Operand) {
	s.ssaWorklist = append(s.ssaWorklist, o.Uses()...)
}

// Propagate runs the fixed-point loop.
func Propagate(f *myir.Function, visit Visitor) {
	s := &Sparse{fn: f, BlockVisited: map[*myir.Block]bool{}}
	s.PushBlock(f.Entry())

	for len(s.cfgWorklist) > 0 || len(s.ssaWorklist) > 0 {
		for len(s.cfgWorklist) > 0 {
			b := s.cfgWorklist[len(s.cfgWorklist)-1]
			s.cfgWorklist = s.cfgWorklist[:len(s.cfgWorklist)-1]
			if s.BlockVisited[b] {
				continue
			}
			s.BlockVisited[b] = true
			for _, inst := range b.Insts() {
				visit(inst, s)
			}
			// an unconditional fall-through is always executable; the
			// visitor decides for conditional branches
			if t := b.Terminator(); t != nil && t.Kind == myir.BranchInst {
				s.PushBlock(t.Taken)
			}
		}
		for len(s.ssaWorklist) > 0 {
			i := s.ssaWorklist[len(s.ssaWorklist)-1]
			s.ssaWorklist = s.ssaWorklist[:len(s.ssaWorklist)-1]
			if i.Holder() != nil && s.BlockVisited[i.Holder()] {
				visit(i, s)
			}
		}
	}
}
