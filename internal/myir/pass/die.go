package pass

import "coolc/internal/myir"

// DIE erases instructions whose def has no uses. Stores and calls are
// conservatively treated as side-effecting and kept; erasure decrements
// the use counts of the dead instruction's operands, which can expose
// more dead code on a later run.
type DIE struct{}

func (DIE) Name() string { return "die" }

func (DIE) Run(f *myir.Function) {
	for {
		var forDelete []*myir.Instruction
		for _, b := range f.CFG().ReversePostOrder() {
			for _, inst := range b.Insts() {
				if inst.HasSideEffects() {
					continue
				}
				if d := inst.Def(); d != nil && len(d.Uses()) == 0 {
					forDelete = append(forDelete, inst)
				}
			}
		}
		if len(forDelete) == 0 {
			return
		}
		// erasing decrements use counts, which can expose a new
		// generation of dead defs
		for _, inst := range forDelete {
			inst.Holder().Erase(inst)
		}
	}
}
