package semant

import (
	"coolc/internal/ast"
	"coolc/internal/diag"
)

// ClassNode is one node of the inheritance tree rooted at Object.
type ClassNode struct {
	Class    *ast.Class
	Children []*ClassNode
}

// Semant runs the three analysis phases: inheritance graph, feature
// collection, type inference. On success it returns the decorated tree;
// on failure the collected diagnostics.
type Semant struct {
	program *ast.Program
	errors  []*diag.Error

	classes map[string]*ast.Class
	nodes   map[string]*ClassNode
	root    *ClassNode

	// flattened per-class tables, built top-down in phase 2
	methods map[string]map[string]*MethodEntry
	attrs   map[string][]*ast.Feature

	current *ast.Class
	scope   *Scope
}

type MethodEntry struct {
	Owner  string
	Method *ast.Feature
}

// Analyze checks the program and returns the class tree. The tree is nil
// if any error was recorded.
func Analyze(program *ast.Program) (*ClassNode, []*diag.Error) {
	s := &Semant{
		program: program,
		classes: map[string]*ast.Class{},
		nodes:   map[string]*ClassNode{},
		methods: map[string]map[string]*MethodEntry{},
		attrs:   map[string][]*ast.Feature{},
	}
	s.buildHierarchy()
	if len(s.errors) == 0 {
		s.collectFeatures(s.root)
	}
	if len(s.errors) == 0 {
		s.inferTypes(s.root)
	}
	if len(s.errors) > 0 {
		return nil, s.errors
	}
	return s.root, nil
}

func (s *Semant) errorf(c *ast.Class, line int, format string, args ...interface{}) {
	s.errors = append(s.errors, diag.Semantic(c.FileName, line, format, args...))
}

// ---------------------------------------------------------------------
// Phase 1: inheritance graph

func (s *Semant) buildHierarchy() {
	for _, c := range BasicClasses() {
		s.classes[c.Name] = c
		s.nodes[c.Name] = &ClassNode{Class: c}
	}
	s.root = s.nodes[ast.ObjectClass]
	for _, c := range BasicClasses() {
		if c.Name != ast.ObjectClass {
			s.root.Children = append(s.root.Children, s.nodes[c.Name])
		}
	}

	for _, c := range s.program.Classes {
		if _, ok := s.classes[c.Name]; ok {
			s.errorf(c, c.Line, "Class %s was already defined", c.Name)
			continue
		}
		if c.Name == ast.SelfType {
			s.errorf(c, c.Line, "SELF_TYPE can't be a class name")
			continue
		}
		s.classes[c.Name] = c
		s.nodes[c.Name] = &ClassNode{Class: c}
	}
	if len(s.errors) > 0 {
		return
	}

	for _, c := range s.program.Classes {
		if ast.IsPrimitive(c.Parent) {
			s.errorf(c, c.Line, "Class %s can't inherit class %s", c.Name, c.Parent)
			continue
		}
		parent, ok := s.nodes[c.Parent]
		if !ok {
			s.errorf(c, c.Line, "Class %s inherits from undefined class %s", c.Name, c.Parent)
			continue
		}
		parent.Children = append(parent.Children, s.nodes[c.Name])
	}
	if len(s.errors) > 0 {
		return
	}

	// every class not reachable from Object sits on a cycle
	reachable := map[string]bool{}
	var walk func(n *ClassNode)
	walk = func(n *ClassNode) {
		reachable[n.Class.Name] = true
		for _, ch := range n.Children {
			walk(ch)
		}
	}
	walk(s.root)
	for _, c := range s.program.Classes {
		if !reachable[c.Name] {
			s.errorf(c, c.Line, "Inheritance cycle detected in class %s", c.Name)
		}
	}
	if len(s.errors) > 0 {
		return
	}

	main, ok := s.classes[ast.MainClass]
	if !ok {
		s.errors = append(s.errors, diag.Semantic("", 0, "Class Main is not defined"))
		return
	}
	for _, f := range main.Features {
		if f.Kind == ast.MethodFeature && f.Name == ast.MainMethod {
			if len(f.Formals) != 0 {
				s.errorf(main, f.Line, "Method main of class Main should not take arguments")
			}
			return
		}
	}
	s.errorf(main, main.Line, "Method main is not defined in class Main")
}

// ---------------------------------------------------------------------
// Phase 2: feature collection, top-down

func (s *Semant) collectFeatures(node *ClassNode) {
	c := node.Class
	parentMethods := map[string]*MethodEntry{}
	var parentAttrs []*ast.Feature
	if c.Name != ast.ObjectClass {
		parentMethods = s.methods[c.Parent]
		parentAttrs = s.attrs[c.Parent]
	}

	methods := make(map[string]*MethodEntry, len(parentMethods))
	for name, e := range parentMethods {
		methods[name] = e
	}
	attrs := make([]*ast.Feature, len(parentAttrs))
	copy(attrs, parentAttrs)

	attrNames := map[string]bool{}
	for _, a := range parentAttrs {
		attrNames[a.Name] = true
	}

	for _, f := range c.Features {
		switch f.Kind {
		case ast.AttrFeature:
			if f.Name == ast.SelfObject {
				s.errorf(c, f.Line, "'self' can't be an attribute name")
				continue
			}
			if attrNames[f.Name] {
				s.errorf(c, f.Line, "Attribute %s is already defined", f.Name)
				continue
			}
			attrNames[f.Name] = true
			attrs = append(attrs, f)
		case ast.MethodFeature:
			if prev, ok := methods[f.Name]; ok {
				if prev.Owner == c.Name {
					s.errorf(c, f.Line, "Method %s is already defined in class %s", f.Name, c.Name)
					continue
				}
				if !s.sameSignature(prev.Method, f) {
					s.errorf(c, f.Line, "Method %s is redefined with an incompatible signature", f.Name)
					continue
				}
			}
			methods[f.Name] = &MethodEntry{Owner: c.Name, Method: f}
		}
	}

	s.methods[c.Name] = methods
	s.attrs[c.Name] = attrs

	for _, ch := range node.Children {
		s.collectFeatures(ch)
	}
}

// An override must match formal count, formal types, and return type.
func (s *Semant) sameSignature(a, b *ast.Feature) bool {
	if a.DeclType != b.DeclType || len(a.Formals) != len(b.Formals) {
		return false
	}
	for i := range a.Formals {
		if a.Formals[i].DeclType != b.Formals[i].DeclType {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------
// Phase 3: type inference, top-down

func (s *Semant) inferTypes(node *ClassNode) {
	c := node.Class
	if c.FileName != basicClassFile {
		s.current = c
		s.scope = NewScope()
		s.scope.Push()
		s.scope.Add(ast.SelfObject, ast.SelfType)
		for _, a := range s.attrs[c.Name] {
			s.scope.Add(a.Name, a.DeclType)
		}
		for _, f := range c.Features {
			switch f.Kind {
			case ast.AttrFeature:
				s.checkAttribute(f)
			case ast.MethodFeature:
				s.checkMethod(f)
			}
		}
		s.scope.Pop()
	}
	for _, ch := range node.Children {
		s.inferTypes(ch)
	}
}

func (s *Semant) knownType(t string) bool {
	if t == ast.SelfType {
		return true
	}
	_, ok := s.classes[t]
	return ok
}

func (s *Semant) checkAttribute(f *ast.Feature) {
	if !s.knownType(f.DeclType) {
		s.errorf(s.current, f.Line, "Attribute %s has undefined type %s", f.Name, f.DeclType)
		return
	}
	if f.Init != nil {
		t := s.typeOf(f.Init)
		if t != "" && !s.Conforms(t, f.DeclType) {
			s.errorf(s.current, f.Line,
				"Inferred type %s of initializer of attribute %s does not conform to declared type %s",
				t, f.Name, f.DeclType)
		}
	}
}

func (s *Semant) checkMethod(f *ast.Feature) {
	if !s.knownType(f.DeclType) {
		s.errorf(s.current, f.Line, "Method %s has undefined return type %s", f.Name, f.DeclType)
		return
	}
	s.scope.Push()
	for _, frm := range f.Formals {
		if frm.DeclType == ast.SelfType {
			s.errorf(s.current, frm.Line, "Formal %s can't have type SELF_TYPE", frm.Name)
		} else if !s.knownType(frm.DeclType) {
			s.errorf(s.current, frm.Line, "Formal %s has undefined type %s", frm.Name, frm.DeclType)
		}
		switch s.scope.AddIfCan(frm.Name, frm.DeclType) {
		case AddReserved:
			s.errorf(s.current, frm.Line, "'self' can't be a formal name")
		case AddRedefined:
			s.errorf(s.current, frm.Line, "Formal %s is already defined", frm.Name)
		}
	}
	t := s.typeOf(f.Body)
	if t != "" && !s.Conforms(t, f.DeclType) {
		s.errorf(s.current, f.Line,
			"Inferred return type %s of method %s does not conform to declared type %s",
			t, f.Name, f.DeclType)
	}
	s.scope.Pop()
}

// typeOf infers and decorates the expression's static type; empty string
// means a type error was already recorded below.
func (s *Semant) typeOf(e ast.Expr) string {
	t := s.infer(e)
	e.SetStaticType(t)
	e.SetCanAllocate(canAllocate(e))
	return t
}

func (s *Semant) infer(e ast.Expr) string {
	switch n := e.(type) {
	case *ast.IntConst:
		return ast.IntClass
	case *ast.StringConst:
		return ast.StringClass
	case *ast.BoolConst:
		return ast.BoolClass
	case *ast.Object:
		if t, ok := s.scope.Find(n.Name); ok {
			return t
		}
		s.errorf(s.current, n.Line, "Undeclared identifier %s", n.Name)
		return ""
	case *ast.Assign:
		return s.inferAssign(n)
	case *ast.Binary:
		return s.inferBinary(n)
	case *ast.Unary:
		return s.inferUnary(n)
	case *ast.If:
		return s.inferIf(n)
	case *ast.While:
		return s.inferWhile(n)
	case *ast.Block:
		var t string
		for _, sub := range n.Body {
			t = s.typeOf(sub)
		}
		return t
	case *ast.Let:
		return s.inferLet(n)
	case *ast.Case:
		return s.inferCase(n)
	case *ast.New:
		if !s.knownType(n.TypeName) {
			s.errorf(s.current, n.Line, "'new' used with undefined class %s", n.TypeName)
			return ""
		}
		return n.TypeName
	case *ast.Dispatch:
		return s.inferDispatch(n)
	}
	return ""
}

func (s *Semant) inferAssign(n *ast.Assign) string {
	if n.Name == ast.SelfObject {
		s.errorf(s.current, n.Line, "Can't assign to 'self'")
		return ""
	}
	declared, ok := s.scope.Find(n.Name)
	if !ok {
		s.errorf(s.current, n.Line, "Undeclared identifier %s", n.Name)
		return ""
	}
	t := s.typeOf(n.Value)
	if t == "" {
		return ""
	}
	if !s.Conforms(t, declared) {
		s.errorf(s.current, n.Line,
			"Inferred type %s of assigned expression does not conform to declared type %s of identifier %s",
			t, declared, n.Name)
		return ""
	}
	return t
}

func (s *Semant) inferBinary(n *ast.Binary) string {
	lt := s.typeOf(n.Left)
	rt := s.typeOf(n.Right)
	if lt == "" || rt == "" {
		return ""
	}
	switch n.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		if lt != ast.IntClass || rt != ast.IntClass {
			s.errorf(s.current, n.Line, "Non-Int arguments: %s %s %s", lt, n.Op, rt)
			return ""
		}
		return ast.IntClass
	case ast.OpLT, ast.OpLE:
		if lt != ast.IntClass || rt != ast.IntClass {
			s.errorf(s.current, n.Line, "Non-Int arguments: %s %s %s", lt, n.Op, rt)
			return ""
		}
		return ast.BoolClass
	case ast.OpEQ:
		if ast.IsPrimitive(lt) || ast.IsPrimitive(rt) {
			if lt != rt {
				s.errorf(s.current, n.Line, "Illegal comparison with a basic type")
				return ""
			}
		}
		return ast.BoolClass
	}
	return ""
}

func (s *Semant) inferUnary(n *ast.Unary) string {
	t := s.typeOf(n.Operand)
	if t == "" {
		return ""
	}
	switch n.Op {
	case ast.OpNeg:
		if t != ast.IntClass {
			s.errorf(s.current, n.Line, "Argument of '~' has type %s instead of Int", t)
			return ""
		}
		return ast.IntClass
	case ast.OpNot:
		if t != ast.BoolClass {
			s.errorf(s.current, n.Line, "Argument of 'not' has type %s instead of Bool", t)
			return ""
		}
		return ast.BoolClass
	case ast.OpIsVoid:
		return ast.BoolClass
	}
	return ""
}

func (s *Semant) inferIf(n *ast.If) string {
	if t := s.typeOf(n.Cond); t != "" && t != ast.BoolClass {
		s.errorf(s.current, n.Line, "Predicate of 'if' has type %s instead of Bool", t)
	}
	tt := s.typeOf(n.Then)
	ft := s.typeOf(n.Else)
	if tt == "" || ft == "" {
		return ""
	}
	return s.LUB(tt, ft)
}

func (s *Semant) inferWhile(n *ast.While) string {
	if t := s.typeOf(n.Cond); t != "" && t != ast.BoolClass {
		s.errorf(s.current, n.Line, "Predicate of 'while' has type %s instead of Bool", t)
	}
	s.typeOf(n.Body)
	return ast.ObjectClass
}

func (s *Semant) inferLet(n *ast.Let) string {
	if n.Name == ast.SelfObject {
		s.errorf(s.current, n.Line, "'self' can't be bound in a 'let' expression")
		return ""
	}
	if !s.knownType(n.DeclType) {
		s.errorf(s.current, n.Line, "Identifier %s declared with undefined type %s", n.Name, n.DeclType)
		return ""
	}
	if n.Init != nil {
		t := s.typeOf(n.Init)
		if t != "" && !s.Conforms(t, n.DeclType) {
			s.errorf(s.current, n.Line,
				"Inferred type %s of initializer of %s does not conform to declared type %s",
				t, n.Name, n.DeclType)
		}
	}
	s.scope.Push()
	s.scope.Add(n.Name, n.DeclType)
	t := s.typeOf(n.Body)
	s.scope.Pop()
	return t
}

func (s *Semant) inferCase(n *ast.Case) string {
	s.typeOf(n.Expr)
	seen := map[string]bool{}
	result := ""
	for _, br := range n.Branches {
		if br.DeclType == ast.SelfType {
			s.errorf(s.current, br.Line, "Case branch can't have type SELF_TYPE")
			continue
		}
		if !s.knownType(br.DeclType) {
			s.errorf(s.current, br.Line, "Case branch has undefined type %s", br.DeclType)
			continue
		}
		if seen[br.DeclType] {
			s.errorf(s.current, br.Line, "Duplicate branch %s in case expression", br.DeclType)
			continue
		}
		seen[br.DeclType] = true
		s.scope.Push()
		s.scope.Add(br.Name, br.DeclType)
		t := s.typeOf(br.Body)
		s.scope.Pop()
		if t == "" {
			return ""
		}
		if result == "" {
			result = t
		} else {
			result = s.LUB(result, t)
		}
	}
	return result
}

func (s *Semant) inferDispatch(n *ast.Dispatch) string {
	recv := s.typeOf(n.Receiver)
	if recv == "" {
		return ""
	}
	lookup := recv
	if n.TypeAnnot != "" {
		if !s.Conforms(recv, n.TypeAnnot) {
			s.errorf(s.current, n.Line,
				"Expression of type %s does not conform to static dispatch type %s", recv, n.TypeAnnot)
			return ""
		}
		lookup = n.TypeAnnot
	}
	resolved := s.resolveSelfType(lookup)
	entry, ok := s.methods[resolved][n.Method]
	if !ok {
		s.errorf(s.current, n.Line, "Dispatch to undefined method %s", n.Method)
		return ""
	}
	m := entry.Method
	if len(n.Args) != len(m.Formals) {
		s.errorf(s.current, n.Line, "Method %s called with wrong number of arguments", n.Method)
		return ""
	}
	for i, a := range n.Args {
		t := s.typeOf(a)
		if t == "" {
			return ""
		}
		if !s.Conforms(t, m.Formals[i].DeclType) {
			s.errorf(s.current, n.Line,
				"In call of method %s, type %s of argument %s does not conform to declared type %s",
				n.Method, t, m.Formals[i].Name, m.Formals[i].DeclType)
		}
	}
	if m.DeclType == ast.SelfType {
		return recv
	}
	return m.DeclType
}

// ---------------------------------------------------------------------
// Conformance and least upper bound over the class tree

func (s *Semant) resolveSelfType(t string) string {
	if t == ast.SelfType {
		return s.current.Name
	}
	return t
}

// Conforms reports a <= b. SELF_TYPE conforms to T iff the current class
// conforms to T; T never conforms to SELF_TYPE unless T is SELF_TYPE.
func (s *Semant) Conforms(a, b string) bool {
	if a == b {
		return true
	}
	if b == ast.SelfType {
		return false
	}
	a = s.resolveSelfType(a)
	for cur := a; ; {
		if cur == b {
			return true
		}
		if cur == ast.ObjectClass {
			return false
		}
		cur = s.classes[cur].Parent
	}
}

// LUB computes the least upper bound of two types in the lattice.
func (s *Semant) LUB(a, b string) string {
	if a == b {
		return a
	}
	a = s.resolveSelfType(a)
	b = s.resolveSelfType(b)
	depth := func(t string) int {
		d := 0
		for cur := t; cur != ast.ObjectClass; cur = s.classes[cur].Parent {
			d++
		}
		return d
	}
	da, db := depth(a), depth(b)
	for da > db {
		a = s.classes[a].Parent
		da--
	}
	for db > da {
		b = s.classes[b].Parent
		db--
	}
	for a != b {
		a = s.classes[a].Parent
		b = s.classes[b].Parent
	}
	return a
}

// Methods exposes the flattened selector table of a class.
func (s *Semant) Methods(class string) map[string]*MethodEntry {
	return s.methods[class]
}

// ---------------------------------------------------------------------
// Allocation decoration

// canAllocate marks expressions whose evaluation may call into the
// allocator: object creation, any dispatch, and arithmetic that boxes
// its Int result. The flag propagates upwards.
func canAllocate(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.New, *ast.Dispatch:
		return true
	case *ast.Binary:
		switch n.Op {
		case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
			return true
		}
		return n.Left.CanAllocate() || n.Right.CanAllocate()
	case *ast.Unary:
		return n.Op == ast.OpNeg || n.Operand.CanAllocate()
	case *ast.Assign:
		return n.Value.CanAllocate()
	case *ast.If:
		return n.Cond.CanAllocate() || n.Then.CanAllocate() || n.Else.CanAllocate()
	case *ast.While:
		return n.Cond.CanAllocate() || n.Body.CanAllocate()
	case *ast.Block:
		for _, sub := range n.Body {
			if sub.CanAllocate() {
				return true
			}
		}
		return false
	case *ast.Let:
		return (n.Init != nil && n.Init.CanAllocate()) || n.Body.CanAllocate()
	case *ast.Case:
		if n.Expr.CanAllocate() {
			return true
		}
		for _, br := range n.Branches {
			if br.Body.CanAllocate() {
				return true
			}
		}
		return false
	}
	return false
}
