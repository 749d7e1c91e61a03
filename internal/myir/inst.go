package myir

import (
	"fmt"
	"strings"
)

// InstKind is the closed instruction set.
type InstKind int

const (
	PhiInst InstKind = iota

	// memory
	LoadInst
	StoreInst

	// control
	BranchInst
	CondBranchInst
	RetInst

	CallInst

	// binary arithmetic
	AddInst
	SubInst
	MulInst
	DivInst
	ShlInst
	OrInst
	XorInst

	// binary comparison
	LTInst
	LEInst
	GTInst
	EQInst

	// unary
	NegInst
	NotInst

	MoveInst
)

var instNames = [...]string{
	"phi", "ld", "st", "br", "condbr", "ret", "call",
	"add", "sub", "mul", "div", "shl", "or", "xor",
	"lt", "le", "gt", "eq", "neg", "not", "move",
}

func (k InstKind) String() string { return instNames[k] }

// Instruction is one IR instruction. The use and def lists are kept
// symmetric with the operands' back-links: constructing an instruction
// with operand x in uses appends it to x.uses; UpdateUse moves the link.
type Instruction struct {
	id    int
	Kind  InstKind
	uses  []*Operand
	defs  []*Operand
	block *Block

	// control targets
	Taken    *Block
	NotTaken *Block

	// phi bookkeeping: the pre-SSA variable this phi merges; the
	// incoming values are the phi's uses, parallel to block.preds
	PhiVar *Operand
}

func (i *Instruction) ID() int          { return i.id }
func (i *Instruction) Uses() []*Operand { return i.uses }
func (i *Instruction) Defs() []*Operand { return i.defs }
func (i *Instruction) Holder() *Block   { return i.block }

// Def returns the single def or nil.
func (i *Instruction) Def() *Operand {
	if len(i.defs) > 0 {
		return i.defs[0]
	}
	return nil
}

func (i *Instruction) link() {
	for _, u := range i.uses {
		if u != nil {
			u.usedBy(i)
		}
	}
	for _, d := range i.defs {
		d.defedBy(i)
	}
}

// UpdateUse replaces use slot n, keeping the back-links symmetric.
func (i *Instruction) UpdateUse(n int, o *Operand) {
	if old := i.uses[n]; old != nil {
		old.dropUse(i)
	}
	i.uses[n] = o
	if o != nil {
		o.usedBy(i)
	}
}

// UpdateDef replaces def slot n, keeping the back-links symmetric.
func (i *Instruction) UpdateDef(n int, o *Operand) {
	if old := i.defs[n]; old != nil {
		old.dropDef(i)
	}
	i.defs[n] = o
	o.defedBy(i)
}

// ReplaceUses rewrites every use slot holding old to new.
func (i *Instruction) ReplaceUses(old, new *Operand) {
	for n, u := range i.uses {
		if u == old {
			i.UpdateUse(n, new)
		}
	}
}

// unlink detaches the instruction from every operand.
func (i *Instruction) unlink() {
	for _, u := range i.uses {
		if u != nil {
			u.dropUse(i)
		}
	}
	for _, d := range i.defs {
		d.dropDef(i)
	}
}

// IsTerminator reports whether the instruction ends a block.
func (i *Instruction) IsTerminator() bool {
	switch i.Kind {
	case BranchInst, CondBranchInst, RetInst:
		return true
	}
	return false
}

// HasSideEffects reports whether the instruction must survive DIE even
// when its def is unused.
func (i *Instruction) HasSideEffects() bool {
	switch i.Kind {
	case StoreInst, CallInst, BranchInst, CondBranchInst, RetInst:
		return true
	}
	return false
}

func (i *Instruction) String() string {
	var sb strings.Builder
	if d := i.Def(); d != nil {
		fmt.Fprintf(&sb, "%s <- ", d)
	}
	sb.WriteString(i.Kind.String())
	for _, u := range i.uses {
		sb.WriteByte(' ')
		if u == nil {
			sb.WriteString("<nil>")
		} else {
			sb.WriteString(u.String())
		}
	}
	switch i.Kind {
	case BranchInst:
		fmt.Fprintf(&sb, " %s", i.Taken.Name())
	case CondBranchInst:
		fmt.Fprintf(&sb, " %s %s", i.Taken.Name(), i.NotTaken.Name())
	}
	return sb.String()
}
