package pass

import "coolc/internal/myir"

// Unboxing rewrites uses of boxed Int/Bool values to operate on the raw
// payload: method arguments of primitive type get an entry-block load of
// the payload, and moves of primitive global constants become moves of
// the constant's value. Rewritten instructions go on a replacement
// stack; processing pops and rewrites transitively. A store into a box
// whose only other users are its allocation-and-init sequence deletes
// the whole sequence; a box that escapes through a call or an object
// field stays alive, keeping the payload boxed at the escape point.
type Unboxing struct {
	// FieldOffset is the byte offset of the single payload slot.
	FieldOffset int64
	// InitSuffix identifies class init routines by symbol name.
	InitSuffix string
}

// WordBytes is the word size of the IR target's initializer layout.
const WordBytes = 8

func (Unboxing) Name() string { return "unboxing" }

func (p Unboxing) Run(f *myir.Function) {
	processed := map[*myir.Instruction]bool{}
	p.replaceArgs(f, processed)
	p.replaceLets(f, processed)
}

func (p Unboxing) isInitCall(inst *myir.Instruction) bool {
	if inst.Kind != myir.CallInst {
		return false
	}
	callee := inst.Uses()[0]
	n := callee.Name
	return len(n) >= len(p.InitSuffix) && n[len(n)-len(p.InitSuffix):] == p.InitSuffix
}

// replaceArgs loads the payload of each primitive-typed parameter at
// entry and redirects every non-call use of the box to the payload.
func (p Unboxing) replaceArgs(f *myir.Function, processed map[*myir.Instruction]bool) {
	var replace []*myir.Instruction
	m := f.Module()
	entry := f.Entry()

	for _, param := range f.Params() {
		if param.Prim == myir.NoPrim {
			continue
		}
		value := m.NewValue(myir.Int64, param.Name+".val")
		offset := m.NewConstant(myir.UInt64, p.FieldOffset)
		load := myir.NewLoad(m, value, param, offset)
		entry.Prepend(load)

		var forUpdate []*myir.Instruction
		for _, use := range param.Uses() {
			if use == load || use.Kind == myir.CallInst || use.Kind == myir.RetInst {
				continue
			}
			forUpdate = append(forUpdate, use)
		}
		for _, inst := range forUpdate {
			inst.ReplaceUses(param, value)
			replace = append(replace, inst)
		}
	}
	p.replaceUses(replace, processed)
}

// replaceLets rewrites moves of primitive global constants into moves
// of the constant's payload word.
func (p Unboxing) replaceLets(f *myir.Function, processed map[*myir.Instruction]bool) {
	var replace []*myir.Instruction
	m := f.Module()

	for _, b := range f.CFG().ReversePostOrder() {
		var forPrepend []*myir.Instruction
		for _, inst := range b.Insts() {
			if inst.Kind != myir.MoveInst {
				continue
			}
			src := inst.Uses()[0]
			if src.Kind != myir.GlobalConstKind || src.Prim == myir.NoPrim {
				continue
			}
			payload := src.Inits[int64(src.BaseSkip)+p.FieldOffset/WordBytes].Value
			value := m.NewConstant(myir.Int64, payload)
			move := myir.NewMove(m, value, m.NewValue(myir.Int64, ""))

			var forUpdate []*myir.Instruction
			for _, use := range inst.Def().Uses() {
				if use.Kind != myir.CallInst && use.Kind != myir.RetInst {
					forUpdate = append(forUpdate, use)
				}
			}
			for _, use := range forUpdate {
				use.ReplaceUses(inst.Def(), move.Def())
				replace = append(replace, use)
			}
			forPrepend = append(forPrepend, move)
		}
		for _, mv := range forPrepend {
			b.Prepend(mv)
		}
	}
	p.replaceUses(replace, processed)
}

func (p Unboxing) replaceUses(stack []*myir.Instruction, processed map[*myir.Instruction]bool) {
	for len(stack) > 0 {
		inst := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if processed[inst] {
			continue
		}
		processed[inst] = true

		switch inst.Kind {
		case myir.LoadInst:
			stack = p.replaceLoad(inst, stack)
		case myir.StoreInst:
			stack = p.replaceStore(inst, stack)
		default:
			if d := inst.Def(); d != nil {
				stack = append(stack, d.Uses()...)
			}
		}
	}
}

// replaceLoad turns a payload load whose base is now a raw value into a
// move of that value.
func (p Unboxing) replaceLoad(load *myir.Instruction, stack []*myir.Instruction) []*myir.Instruction {
	result := load.Def()
	object := load.Uses()[0]
	block := load.Holder()
	if block == nil {
		return stack
	}

	move := myir.NewMove(block.Func().Module(), object, result)
	block.ReplaceInst(load, move)

	return append(stack, result.Uses()...)
}

// replaceStore handles a payload store into a freshly allocated box:
// non-call users of the box switch to the raw value, and when nothing
// escapes, the store together with the allocation-and-init sequence is
// deleted. If the box is stored into an object field it must stay.
func (p Unboxing) replaceStore(store *myir.Instruction, stack []*myir.Instruction) []*myir.Instruction {
	object := store.Uses()[0]
	value := store.Uses()[2]

	forDelete := []*myir.Instruction{store}
	var forUpdate []*myir.Instruction

	for _, use := range object.Uses() {
		if use == store {
			continue
		}
		switch use.Kind {
		case myir.CallInst:
			if p.isInitCall(use) {
				forDelete = append(forDelete, use)
			} else {
				// the box escapes through the call: keep everything
				forDelete = nil
			}
		case myir.StoreInst, myir.RetInst:
			// the box escapes: stored into an object field or returned
			// boxed across the call boundary
			forDelete = nil
		default:
			forUpdate = append(forUpdate, use)
		}
	}

	for _, inst := range forUpdate {
		inst.ReplaceUses(object, value)
		stack = append(stack, inst)
	}

	if len(forDelete) > 0 {
		if len(object.Defs()) == 1 {
			forDelete = append(forDelete, object.Defs()[0])
		}
		for _, inst := range forDelete {
			if b := inst.Holder(); b != nil {
				b.Erase(inst)
			}
		}
	}
	return stack
}
