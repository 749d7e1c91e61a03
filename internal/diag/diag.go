package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Kind classifies a diagnostic by the phase that produced it.
type Kind string

const (
	LexicalError  Kind = "LexicalError"
	SyntaxError   Kind = "SyntaxError"
	SemanticError Kind = "SemanticError"
)

// Error is a located compiler diagnostic.
type Error struct {
	Kind    Kind
	File    string
	Line    int
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return e.Message
}

func Semantic(file string, line int, format string, args ...interface{}) *Error {
	return &Error{Kind: SemanticError, File: file, Line: line, Message: fmt.Sprintf(format, args...)}
}

// Print writes errors to w, colourized when w is a terminal.
func Print(w io.Writer, errs []*Error) {
	colour := false
	if f, ok := w.(*os.File); ok {
		colour = isatty.IsTerminal(f.Fd())
	}
	var sb strings.Builder
	for _, e := range errs {
		if colour {
			sb.WriteString("\x1b[31m")
			sb.WriteString(e.Error())
			sb.WriteString("\x1b[0m\n")
		} else {
			sb.WriteString(e.Error())
			sb.WriteByte('\n')
		}
	}
	fmt.Fprint(w, sb.String())
}
