package irgen

import "coolc/internal/myir"

// Object layout constants of the 64-bit IR target. The header is
// [mark, tag, size, dispatch_table]; payload follows.
const (
	WordSize       = 8
	MarkOffset     = 0
	TagOffset      = 1 * WordSize
	SizeOffset     = 2 * WordSize
	DispTabOffset  = 3 * WordSize
	FieldOffset    = 4 * WordSize
)

// Linker-visible runtime entry points.
const (
	InitRuntimeName   = "_init_runtime"
	FinishRuntimeName = "_finish_runtime"
	EqualsName        = "_equals"
	CaseAbortName     = "_case_abort"
	CaseAbort2Name    = "_case_abort_2"
	DispatchAbortName = "_dispatch_abort"
	GCAllocName       = "_gc_alloc"
)

// Runtime declares the support routines generated code calls into.
type Runtime struct {
	InitRuntime   *myir.Function
	FinishRuntime *myir.Function
	Equals        *myir.Function
	CaseAbort     *myir.Function
	CaseAbort2    *myir.Function
	DispatchAbort *myir.Function
	GCAlloc       *myir.Function
}

func declareRuntime(m *myir.Module) *Runtime {
	ptr := myir.Pointer
	i64 := myir.Int64
	decl := func(name string, ret myir.OperandType, params []myir.OperandType, names []string) *myir.Function {
		return m.NewFunction(name, ret, params, names)
	}
	return &Runtime{
		InitRuntime:   decl(InitRuntimeName, myir.Void, nil, nil),
		FinishRuntime: decl(FinishRuntimeName, myir.Void, nil, nil),
		Equals:        decl(EqualsName, i64, []myir.OperandType{ptr, ptr}, []string{"lhs", "rhs"}),
		CaseAbort:     decl(CaseAbortName, myir.Void, []myir.OperandType{i64}, []string{"tag"}),
		CaseAbort2:    decl(CaseAbort2Name, myir.Void, []myir.OperandType{ptr, i64}, []string{"file", "line"}),
		DispatchAbort: decl(DispatchAbortName, myir.Void, []myir.OperandType{ptr, i64}, []string{"file", "line"}),
		GCAlloc:       decl(GCAllocName, ptr, []myir.OperandType{i64, i64, ptr}, []string{"tag", "size", "disp_tab"}),
	}
}
