package ast

import (
	"fmt"
	"io"

	"github.com/kr/pretty"
)

// Dump writes the decorated tree in a readable form. Used by the driver's
// PrintFinalAST flag.
func Dump(w io.Writer, p *Program) {
	for _, c := range p.Classes {
		fmt.Fprintf(w, "class %s inherits %s (%s:%d)\n", c.Name, c.Parent, c.FileName, c.Line)
		for _, f := range c.Features {
			switch f.Kind {
			case AttrFeature:
				fmt.Fprintf(w, "  attr %s : %s\n", f.Name, f.DeclType)
				if f.Init != nil {
					pretty.Fprintf(w, "    %# v\n", f.Init)
				}
			case MethodFeature:
				fmt.Fprintf(w, "  method %s(", f.Name)
				for i, frm := range f.Formals {
					if i > 0 {
						fmt.Fprint(w, ", ")
					}
					fmt.Fprintf(w, "%s : %s", frm.Name, frm.DeclType)
				}
				fmt.Fprintf(w, ") : %s\n", f.DeclType)
				pretty.Fprintf(w, "    %# v\n", f.Body)
			}
		}
	}
}
