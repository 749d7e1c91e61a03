package semant

import "coolc/internal/ast"

const basicClassFile = "<basic class>"

func method(name, ret string, formals ...*ast.Formal) *ast.Feature {
	return &ast.Feature{Kind: ast.MethodFeature, Name: name, DeclType: ret, Formals: formals}
}

func formal(name, typ string) *ast.Formal {
	return &ast.Formal{Name: name, DeclType: typ}
}

// BasicClasses returns the synthetic Object, Int, Bool, String and IO
// class declarations inserted ahead of user classes. Int and Bool carry
// a single value slot and String a length slot; those live at the object
// layout level, not as user-visible attributes.
func BasicClasses() []*ast.Class {
	object := &ast.Class{
		Name: ast.ObjectClass, Parent: "", FileName: basicClassFile,
		Features: []*ast.Feature{
			method("abort", ast.ObjectClass),
			method("type_name", ast.StringClass),
			method("copy", ast.SelfType),
		},
	}
	intClass := &ast.Class{
		Name: ast.IntClass, Parent: ast.ObjectClass, FileName: basicClassFile,
	}
	boolClass := &ast.Class{
		Name: ast.BoolClass, Parent: ast.ObjectClass, FileName: basicClassFile,
	}
	stringClass := &ast.Class{
		Name: ast.StringClass, Parent: ast.ObjectClass, FileName: basicClassFile,
		Features: []*ast.Feature{
			method("length", ast.IntClass),
			method("concat", ast.StringClass, formal("s", ast.StringClass)),
			method("substr", ast.StringClass, formal("i", ast.IntClass), formal("l", ast.IntClass)),
		},
	}
	ioClass := &ast.Class{
		Name: ast.IOClass, Parent: ast.ObjectClass, FileName: basicClassFile,
		Features: []*ast.Feature{
			method("out_string", ast.SelfType, formal("x", ast.StringClass)),
			method("out_int", ast.SelfType, formal("x", ast.IntClass)),
			method("in_string", ast.StringClass),
			method("in_int", ast.IntClass),
		},
	}
	return []*ast.Class{object, intClass, boolClass, stringClass, ioClass}
}
