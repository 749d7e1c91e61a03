package token

import "fmt"

// Type identifies the lexical class of a token.
type Type string

const (
	// Keywords
	Class    Type = "CLASS"
	Else     Type = "ELSE"
	Fi       Type = "FI"
	If       Type = "IF"
	In       Type = "IN"
	Inherits Type = "INHERITS"
	Let      Type = "LET"
	Loop     Type = "LOOP"
	Pool     Type = "POOL"
	Then     Type = "THEN"
	While    Type = "WHILE"
	Case     Type = "CASE"
	Esac     Type = "ESAC"
	Of       Type = "OF"
	Not      Type = "NOT"
	NewKw    Type = "NEW"
	IsVoid   Type = "ISVOID"

	// Literals and identifiers
	IntConst  Type = "INT_CONST"
	StrConst  Type = "STR_CONST"
	BoolConst Type = "BOOL_CONST"
	TypeID    Type = "TYPEID"
	ObjectID  Type = "OBJECTID"

	// Punctuators
	Semicolon Type = ";"
	LBrace    Type = "{"
	RBrace    Type = "}"
	Colon     Type = ":"
	LParen    Type = "("
	RParen    Type = ")"
	Dot       Type = "."
	At        Type = "@"
	Tilde     Type = "~"
	Star      Type = "*"
	Slash     Type = "/"
	Plus      Type = "+"
	Minus     Type = "-"
	LT        Type = "<"
	LE        Type = "<="
	Equal     Type = "="
	Assign    Type = "<-"
	Darrow    Type = "=>"
	Comma     Type = ","

	Error Type = "ERROR"
)

// Token is a single lexeme with its class and 1-based source line.
// Immutable after construction.
type Token struct {
	Type   Type
	Lexeme string
	Line   int
}

func New(typ Type, lexeme string, line int) *Token {
	return &Token{Type: typ, Lexeme: lexeme, Line: line}
}

func (t *Token) String() string {
	switch t.Type {
	case StrConst, Error:
		return fmt.Sprintf("#%d %s %q", t.Line, t.Type, t.Lexeme)
	case TypeID, ObjectID, IntConst, BoolConst:
		return fmt.Sprintf("#%d %s %s", t.Line, t.Type, t.Lexeme)
	default:
		return fmt.Sprintf("#%d '%s'", t.Line, t.Lexeme)
	}
}

// DisplayString renders the token the way parser diagnostics refer to it.
func (t *Token) DisplayString() string {
	switch t.Type {
	case StrConst:
		return fmt.Sprintf("%q", t.Lexeme)
	case Error:
		return fmt.Sprintf("ERROR %q", t.Lexeme)
	default:
		return t.Lexeme
	}
}

var keywords = map[string]Type{
	"class": Class, "else": Else, "fi": Fi, "if": If, "in": In,
	"inherits": Inherits, "let": Let, "loop": Loop, "pool": Pool,
	"then": Then, "while": While, "case": Case, "esac": Esac, "of": Of,
	"not": Not, "new": NewKw, "isvoid": IsVoid,
}

// KeywordType reports the keyword type for an identifier already folded
// to lower case, and whether it is a keyword at all.
func KeywordType(lower string) (Type, bool) {
	t, ok := keywords[lower]
	return t, ok
}
