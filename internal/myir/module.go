package myir

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Function is one IR function: parameters, return type, and a CFG.
type Function struct {
	name    string
	params  []*Operand
	retType OperandType
	entry   *Block
	module  *Module

	cfg *CFG

	// GC-visible operands recorded per call site for stack maps
	Safepoints []*Safepoint
}

// Safepoint records the operands that must stay GC-visible across one
// call instruction.
type Safepoint struct {
	Call *Instruction
	Live []*Operand
}

func (f *Function) Name() string         { return f.name }
func (f *Function) Params() []*Operand   { return f.params }
func (f *Function) RetType() OperandType { return f.retType }
func (f *Function) Entry() *Block        { return f.entry }
func (f *Function) Module() *Module      { return f.module }

func (f *Function) SetEntry(b *Block) {
	f.entry = b
	f.invalidateCFG()
}

// CFG returns the function's flow graph with its analysis caches.
func (f *Function) CFG() *CFG {
	if f.cfg == nil {
		f.cfg = &CFG{fn: f}
	}
	return f.cfg
}

func (f *Function) invalidateCFG() {
	if f.cfg != nil {
		f.cfg.invalidate()
	}
}

// Blocks returns every block reachable from the entry, in reverse
// post-order.
func (f *Function) Blocks() []*Block {
	if f.entry == nil {
		return nil
	}
	return f.CFG().ReversePostOrder()
}

// Module owns the IR of one compilation: functions, global constants
// and global variables in three disjoint name maps.
type Module struct {
	funcs     map[string]*Function
	constants map[string]*Operand
	variables map[string]*Operand

	nextOperID  int
	nextInstID  int
	nextBlockID int
}

func NewModule() *Module {
	return &Module{
		funcs:     map[string]*Function{},
		constants: map[string]*Operand{},
		variables: map[string]*Operand{},
	}
}

func (m *Module) checkName(name string) {
	if _, ok := m.funcs[name]; ok {
		panic(fmt.Sprintf("myir: symbol %s already defined as a function", name))
	}
	if _, ok := m.constants[name]; ok {
		panic(fmt.Sprintf("myir: symbol %s already defined as a constant", name))
	}
	if _, ok := m.variables[name]; ok {
		panic(fmt.Sprintf("myir: symbol %s already defined as a variable", name))
	}
}

// NewFunction declares a function; the body is attached via SetEntry.
func (m *Module) NewFunction(name string, ret OperandType, paramTypes []OperandType, paramNames []string) *Function {
	m.checkName(name)
	f := &Function{name: name, retType: ret, module: m}
	for i, t := range paramTypes {
		p := m.NewValue(t, paramNames[i])
		f.params = append(f.params, p)
	}
	m.funcs[name] = f
	return f
}

// NewGlobalConstant registers an immutable rodata symbol.
func (m *Module) NewGlobalConstant(name string, inits []GlobalInit, bytes []byte) *Operand {
	m.checkName(name)
	o := &Operand{id: m.nextOperID, Kind: GlobalConstKind, Type: Pointer, Name: name, Inits: inits, Bytes: bytes}
	m.nextOperID++
	m.constants[name] = o
	return o
}

// NewGlobalVariable registers a mutable data symbol.
func (m *Module) NewGlobalVariable(name string, inits []GlobalInit) *Operand {
	m.checkName(name)
	o := &Operand{id: m.nextOperID, Kind: GlobalVarKind, Type: Pointer, Name: name, Inits: inits}
	m.nextOperID++
	m.variables[name] = o
	return o
}

// NewValue mints a fresh SSA-capable value operand.
func (m *Module) NewValue(t OperandType, name string) *Operand {
	o := &Operand{id: m.nextOperID, Kind: ValueKind, Type: t, Name: name}
	m.nextOperID++
	return o
}

// NewConstant mints an immediate.
func (m *Module) NewConstant(t OperandType, v int64) *Operand {
	o := &Operand{id: m.nextOperID, Kind: ConstantKind, Type: t, Value: v}
	m.nextOperID++
	return o
}

// FuncOperand returns the function-symbol operand for f.
func (m *Module) FuncOperand(f *Function) *Operand {
	o := &Operand{id: m.nextOperID, Kind: FuncKind, Type: Pointer, Name: f.name}
	m.nextOperID++
	return o
}

func (m *Module) GetFunction(name string) *Function { return m.funcs[name] }
func (m *Module) GetConstant(name string) *Operand  { return m.constants[name] }
func (m *Module) GetVariable(name string) *Operand  { return m.variables[name] }

// Functions returns the functions sorted by name for deterministic
// iteration.
func (m *Module) Functions() []*Function {
	names := maps.Keys(m.funcs)
	slices.Sort(names)
	fs := make([]*Function, len(names))
	for i, n := range names {
		fs[i] = m.funcs[n]
	}
	return fs
}

// Constants returns the rodata symbols sorted by name.
func (m *Module) Constants() []*Operand {
	names := maps.Keys(m.constants)
	slices.Sort(names)
	cs := make([]*Operand, len(names))
	for i, n := range names {
		cs[i] = m.constants[n]
	}
	return cs
}

// Variables returns the data symbols sorted by name.
func (m *Module) Variables() []*Operand {
	names := maps.Keys(m.variables)
	slices.Sort(names)
	vs := make([]*Operand, len(names))
	for i, n := range names {
		vs[i] = m.variables[n]
	}
	return vs
}

// MaxID returns the current operand id bound; passes size bitsets by it.
func (m *Module) MaxID() int { return m.nextOperID }

// MaxInstID returns the current instruction id bound.
func (m *Module) MaxInstID() int { return m.nextInstID }

// RenumberFunction reassigns dense ids to the function's blocks and
// instructions so per-function passes can size bitsets tightly. Operand
// ids are left unchanged. Called by the pass manager before each pass.
func (m *Module) RenumberFunction(f *Function) {
	m.nextInstID = 0
	m.nextBlockID = 0
	for _, b := range f.Blocks() {
		b.id = m.nextBlockID
		m.nextBlockID++
		for _, i := range b.insts {
			i.id = m.nextInstID
			m.nextInstID++
		}
	}
}
