package irgen

import (
	"coolc/internal/ast"
	"coolc/internal/codegen/data"
	"coolc/internal/klass"
	"coolc/internal/myir"
)

// dataIR materializes the shared Data-layer descriptors as myir globals.
// Constants and prototypes (the globals built with header) start with
// the -1 constant mark the GC looks for when scanning rodata; their
// object header starts at the next word. Dispatch tables, class_nameTab
// and class_objTab carry no mark.
type dataIR struct {
	module *myir.Module
	data   *data.Data

	strings map[string]*myir.Operand
	ints    map[int64]*myir.Operand
	bools   map[bool]*myir.Operand

	protos   map[string]*myir.Operand
	dispTabs map[string]*myir.Operand

	nameTab *myir.Operand
	objTab  *myir.Operand
}

func newDataIR(m *myir.Module, d *data.Data) *dataIR {
	return &dataIR{
		module:   m,
		data:     d,
		strings:  map[string]*myir.Operand{},
		ints:     map[int64]*myir.Operand{},
		bools:    map[bool]*myir.Operand{},
		protos:   map[string]*myir.Operand{},
		dispTabs: map[string]*myir.Operand{},
	}
}

func imm(v int64) myir.GlobalInit          { return myir.GlobalInit{Value: v} }
func ref(o *myir.Operand) myir.GlobalInit  { return myir.GlobalInit{Ref: o} }

// header emits the constant mark plus the object header words.
func (d *dataIR) header(tag, size int, disp *myir.Operand) []myir.GlobalInit {
	return []myir.GlobalInit{imm(data.ConstantMark), imm(0), imm(int64(tag)), imm(int64(size)), ref(disp)}
}

func (d *dataIR) intConst(v int64) *myir.Operand {
	if o, ok := d.ints[v]; ok {
		return o
	}
	c := d.data.Int(v)
	k := d.data.Builder.Klass(ast.IntClass)
	inits := append(d.header(k.Tag, k.SizeInBytes(), d.dispTab(ast.IntClass)), imm(v))
	o := d.module.NewGlobalConstant(c.Label, inits, nil)
	o.Prim = myir.PrimInt
	o.BaseSkip = 1
	d.ints[v] = o
	return o
}

func (d *dataIR) boolConst(v bool) *myir.Operand {
	if o, ok := d.bools[v]; ok {
		return o
	}
	c := d.data.Bool(v)
	k := d.data.Builder.Klass(ast.BoolClass)
	val := int64(0)
	if v {
		val = 1
	}
	inits := append(d.header(k.Tag, k.SizeInBytes(), d.dispTab(ast.BoolClass)), imm(val))
	o := d.module.NewGlobalConstant(c.Label, inits, nil)
	o.Prim = myir.PrimBool
	o.BaseSkip = 1
	d.bools[v] = o
	return o
}

func (d *dataIR) stringConst(v string) *myir.Operand {
	if o, ok := d.strings[v]; ok {
		return o
	}
	c := d.data.String(v)
	k := d.data.Builder.Klass(ast.StringClass)
	size := k.HeaderSize() + k.WordSize() + wordAlign(len(v)+1)
	inits := append(d.header(k.Tag, size, d.dispTab(ast.StringClass)), ref(d.intConst(int64(len(v)))))
	bytes := append([]byte(v), 0)
	for len(bytes)%WordSize != 0 {
		bytes = append(bytes, 0)
	}
	o := d.module.NewGlobalConstant(c.Label, inits, bytes)
	o.BaseSkip = 1
	d.strings[v] = o
	return o
}

func wordAlign(n int) int {
	return (n + WordSize - 1) / WordSize * WordSize
}

func (d *dataIR) methodSym(k *klass.Klass, i int) *myir.Function {
	name := data.MethodLabel(k.Methods[i].Owner, k.Methods[i].Feature.Name)
	if f := d.module.GetFunction(name); f != nil {
		return f
	}
	// methods are declared up front by the code generator; a miss here
	// is a primitive method with no body in this module
	params := make([]myir.OperandType, len(k.Methods[i].Feature.Formals)+1)
	names := make([]string, len(params))
	for j := range params {
		params[j] = myir.Pointer
		names[j] = "a"
	}
	names[0] = "self"
	return d.module.NewFunction(name, myir.Pointer, params, names)
}

func (d *dataIR) dispTab(class string) *myir.Operand {
	if o, ok := d.dispTabs[class]; ok {
		return o
	}
	k := d.data.Builder.Klass(class)
	label := data.DispTabLabel(class)
	// reserve the map slot first: Int's dispatch table references
	// methods whose boxes reference the table again
	o := d.module.NewGlobalConstant(label, nil, nil)
	d.dispTabs[class] = o
	inits := make([]myir.GlobalInit, 0, len(k.Methods))
	for i := range k.Methods {
		inits = append(inits, ref(d.module.FuncOperand(d.methodSym(k, i))))
	}
	o.Inits = inits
	return o
}

func (d *dataIR) prototype(class string) *myir.Operand {
	if o, ok := d.protos[class]; ok {
		return o
	}
	k := d.data.Builder.Klass(class)
	inits := d.header(k.Tag, k.SizeInBytes(), d.dispTab(class))
	for _, f := range k.Fields {
		switch f.Type {
		case klass.PrimIntType, klass.PrimBytesType:
			inits = append(inits, imm(0))
		case ast.IntClass:
			inits = append(inits, ref(d.intConst(0)))
		case ast.BoolClass:
			inits = append(inits, ref(d.boolConst(false)))
		case ast.StringClass:
			inits = append(inits, ref(d.stringConst("")))
		default:
			inits = append(inits, imm(0)) // null reference
		}
	}
	o := d.module.NewGlobalConstant(data.PrototypeLabel(class), inits, nil)
	o.BaseSkip = 1
	d.protos[class] = o
	return o
}

// classTables emits class_nameTab and class_objTab, indexed by tag.
func (d *dataIR) classTables() {
	if d.nameTab != nil {
		return
	}
	var names, objs []myir.GlobalInit
	for _, k := range d.data.Builder.ByTag() {
		names = append(names, ref(d.stringConst(k.Name)))
		objs = append(objs,
			ref(d.prototype(k.Name)),
			ref(d.module.FuncOperand(d.initSym(k.Name))))
	}
	d.nameTab = d.module.NewGlobalConstant(data.ClassNameTabLabel, names, nil)
	d.objTab = d.module.NewGlobalConstant(data.ClassObjTabLabel, objs, nil)
}

func (d *dataIR) initSym(class string) *myir.Function {
	name := data.InitLabel(class)
	if f := d.module.GetFunction(name); f != nil {
		return f
	}
	return d.module.NewFunction(name, myir.Void, []myir.OperandType{myir.Pointer}, []string{"self"})
}
