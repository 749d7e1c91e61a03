// Package mips is the stack-machine backend: a SPIM-compatible text
// assembler model and an accumulator-style code generator over the
// shared Klass/Data layer.
package mips

import (
	"fmt"
	"strings"
)

// Register is a MIPS register name.
type Register string

const (
	ZERO Register = "$zero"
	A0   Register = "$a0"
	A1   Register = "$a1"
	A2   Register = "$a2"
	T0   Register = "$t0"
	T1   Register = "$t1"
	T2   Register = "$t2"
	T5   Register = "$t5"
	S0   Register = "$s0"
	SP   Register = "$sp"
	FP   Register = "$fp"
	RA   Register = "$ra"
)

// WordSize of the 32-bit target.
const WordSize = 4

// Assembler accumulates the text and data sections. Labels follow a
// bind-exactly-once contract: referencing is free, but every referenced
// label must be bound before Finalize, and no label binds twice.
// Temporary registers are tracked: allocating with the pool exhausted
// or freeing a register twice aborts.
type Assembler struct {
	text strings.Builder
	dat  strings.Builder

	used  map[string]bool
	bound map[string]bool

	inUse map[Register]bool
	pool  []Register

	labels int
}

func NewAssembler() *Assembler {
	return &Assembler{
		used:  map[string]bool{},
		bound: map[string]bool{},
		inUse: map[Register]bool{},
		pool:  []Register{T0, T1, T2},
	}
}

// AllocReg hands out a free temporary; allocating a register already in
// use is a codegen bug.
func (a *Assembler) AllocReg() Register {
	for _, r := range a.pool {
		if !a.inUse[r] {
			a.inUse[r] = true
			return r
		}
	}
	panic("mips: register allocated while in use")
}

func (a *Assembler) FreeReg(r Register) {
	if !a.inUse[r] {
		panic(fmt.Sprintf("mips: register %s freed twice", r))
	}
	delete(a.inUse, r)
}

// FreshLabel mints a unique local label.
func (a *Assembler) FreshLabel(prefix string) string {
	a.labels++
	return fmt.Sprintf("%s%d", prefix, a.labels)
}

func (a *Assembler) useLabel(l string) string {
	a.used[l] = true
	return l
}

// Bind attaches a label to the current text position.
func (a *Assembler) Bind(l string) {
	if a.bound[l] {
		panic(fmt.Sprintf("mips: label %s bound twice", l))
	}
	a.bound[l] = true
	fmt.Fprintf(&a.text, "%s:\n", l)
}

// Global marks a linker-visible symbol.
func (a *Assembler) Global(l string) {
	fmt.Fprintf(&a.text, "\t.globl\t%s\n", l)
}

func (a *Assembler) op(format string, args ...interface{}) {
	fmt.Fprintf(&a.text, "\t"+format+"\n", args...)
}

// Core instruction set used by the generator.

func (a *Assembler) La(r Register, l string)      { a.op("la\t%s %s", r, a.useLabel(l)) }
func (a *Assembler) Li(r Register, v int)         { a.op("li\t%s %d", r, v) }
func (a *Assembler) Lw(r, base Register, off int) { a.op("lw\t%s %d(%s)", r, off, base) }
func (a *Assembler) Sw(r, base Register, off int) { a.op("sw\t%s %d(%s)", r, off, base) }
func (a *Assembler) Move(dst, src Register)       { a.op("move\t%s %s", dst, src) }
func (a *Assembler) Addiu(dst, src Register, v int) {
	a.op("addiu\t%s %s %d", dst, src, v)
}
func (a *Assembler) Add(dst, l, r Register) { a.op("add\t%s %s %s", dst, l, r) }
func (a *Assembler) Sub(dst, l, r Register) { a.op("sub\t%s %s %s", dst, l, r) }
func (a *Assembler) Mul(dst, l, r Register) { a.op("mul\t%s %s %s", dst, l, r) }
func (a *Assembler) Div(dst, l, r Register) { a.op("div\t%s %s %s", dst, l, r) }
func (a *Assembler) Neg(dst, src Register)  { a.op("neg\t%s %s", dst, src) }
func (a *Assembler) Sll(dst, src Register, shamt int) {
	a.op("sll\t%s %s %d", dst, src, shamt)
}

func (a *Assembler) Beq(l, r Register, label string) { a.op("beq\t%s %s %s", l, r, a.useLabel(label)) }
func (a *Assembler) Bne(l, r Register, label string) { a.op("bne\t%s %s %s", l, r, a.useLabel(label)) }
func (a *Assembler) Blt(l, r Register, label string) { a.op("blt\t%s %s %s", l, r, a.useLabel(label)) }
func (a *Assembler) Ble(l, r Register, label string) { a.op("ble\t%s %s %s", l, r, a.useLabel(label)) }
func (a *Assembler) Bgt(l, r Register, label string) { a.op("bgt\t%s %s %s", l, r, a.useLabel(label)) }
func (a *Assembler) Beqz(r Register, label string)   { a.op("beqz\t%s %s", r, a.useLabel(label)) }
func (a *Assembler) BltImm(r Register, v int, label string) {
	a.op("blt\t%s %d %s", r, v, a.useLabel(label))
}
func (a *Assembler) BgtImm(r Register, v int, label string) {
	a.op("bgt\t%s %d %s", r, v, a.useLabel(label))
}
func (a *Assembler) B(label string)                  { a.op("b\t%s", a.useLabel(label)) }
func (a *Assembler) Jal(label string)                { a.op("jal\t%s", a.useLabel(label)) }
func (a *Assembler) Jalr(r Register)                 { a.op("jalr\t%s", r) }
func (a *Assembler) Jr(r Register)                   { a.op("jr\t%s", r) }

// Push spills a register onto the stack.
func (a *Assembler) Push(r Register) {
	a.Sw(r, SP, 0)
	a.Addiu(SP, SP, -WordSize)
}

// Pop restores the most recent spill.
func (a *Assembler) Pop(r Register) {
	a.Addiu(SP, SP, WordSize)
	a.Lw(r, SP, 0)
}

// Data-section directives.

func (a *Assembler) DataLabel(l string) {
	if a.bound[l] {
		panic(fmt.Sprintf("mips: label %s bound twice", l))
	}
	a.bound[l] = true
	fmt.Fprintf(&a.dat, "%s:\n", l)
}

func (a *Assembler) DataGlobal(l string) {
	fmt.Fprintf(&a.dat, "\t.globl\t%s\n", l)
}

func (a *Assembler) Word(v int) {
	fmt.Fprintf(&a.dat, "\t.word\t%d\n", v)
}

func (a *Assembler) WordLabel(l string) {
	fmt.Fprintf(&a.dat, "\t.word\t%s\n", a.useLabel(l))
}

func (a *Assembler) Ascii(s string) {
	fmt.Fprintf(&a.dat, "\t.ascii\t%q\n", s)
}

func (a *Assembler) ByteVal(v int) {
	fmt.Fprintf(&a.dat, "\t.byte\t%d\n", v)
}

func (a *Assembler) Align(pow int) {
	fmt.Fprintf(&a.dat, "\t.align\t%d\n", pow)
}

// Finalize checks the label contract and renders the full program.
func (a *Assembler) Finalize() string {
	for l := range a.used {
		if !a.bound[l] && !runtimeProvided[l] {
			panic(fmt.Sprintf("mips: label %s used but not bound", l))
		}
	}
	var sb strings.Builder
	sb.WriteString("\t.data\n")
	sb.WriteString(a.dat.String())
	sb.WriteString("\n\t.text\n")
	sb.WriteString(a.text.String())
	return sb.String()
}

// runtimeProvided lists the labels the runtime support library binds.
var runtimeProvided = map[string]bool{
	"_init_runtime": true, "_finish_runtime": true, "_equals": true,
	"_case_abort": true, "_case_abort_2": true, "_dispatch_abort": true,
	"_gc_alloc": true,
	"Object.abort": true, "Object.type_name": true, "Object.copy": true,
	"String.length": true, "String.concat": true, "String.substr": true,
	"IO.out_string": true, "IO.out_int": true, "IO.in_string": true, "IO.in_int": true,
}
