package lexer

import (
	"strings"
	"testing"

	"coolc/internal/token"
)

func tokenize(src string) []*token.Token {
	l := NewFromSource("test.cl", src)
	var out []*token.Token
	for t := l.Next(); t != nil; t = l.Next() {
		out = append(out, t)
	}
	return out
}

func kinds(ts []*token.Token) []token.Type {
	out := make([]token.Type, len(ts))
	for i, t := range ts {
		out[i] = t.Type
	}
	return out
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		want  []token.Type
	}{
		{"class Main inherits IO", []token.Type{token.Class, token.TypeID, token.Inherits, token.TypeID}},
		{"CLASS cLaSs", []token.Type{token.Class, token.Class}},
		{"classes", []token.Type{token.ObjectID}},
		{"if then else fi while loop pool", []token.Type{
			token.If, token.Then, token.Else, token.Fi, token.While, token.Loop, token.Pool}},
		{"let in case esac of not new isvoid", []token.Type{
			token.Let, token.In, token.Case, token.Esac, token.Of, token.Not, token.NewKw, token.IsVoid}},
		{"foo Bar foo_1 Bar_2", []token.Type{token.ObjectID, token.TypeID, token.ObjectID, token.TypeID}},
	}
	for _, tt := range tests {
		got := kinds(tokenize(tt.input))
		if len(got) != len(tt.want) {
			t.Errorf("%q: got %v want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%q: token %d got %v want %v", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func TestBooleanLiteralsNeedLowercaseInitial(t *testing.T) {
	ts := tokenize("true tRuE True false FALSE fAlSe")
	want := []token.Type{
		token.BoolConst, token.BoolConst, token.TypeID,
		token.BoolConst, token.TypeID, token.BoolConst,
	}
	got := kinds(ts)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestOperators(t *testing.T) {
	ts := tokenize("<- <= < = => + - * / ~ @ . , ; : ( ) { }")
	want := []token.Type{
		token.Assign, token.LE, token.LT, token.Equal, token.Darrow,
		token.Plus, token.Minus, token.Star, token.Slash, token.Tilde,
		token.At, token.Dot, token.Comma, token.Semicolon, token.Colon,
		token.LParen, token.RParen, token.LBrace, token.RBrace,
	}
	got := kinds(ts)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"a\bb"`, "a\bb"},
		{`"a\fb"`, "a\fb"},
		{`"a\\b"`, `a\b`},
		{`"a\qb"`, "aqb"}, // any other escaped character maps to itself
	}
	for _, tt := range tests {
		ts := tokenize(tt.input)
		if len(ts) != 1 || ts[0].Type != token.StrConst {
			t.Errorf("%q: got %v", tt.input, ts)
			continue
		}
		if ts[0].Lexeme != tt.want {
			t.Errorf("%q: got %q want %q", tt.input, ts[0].Lexeme, tt.want)
		}
	}
}

func TestStringEscapedNewlineContinues(t *testing.T) {
	ts := tokenize("\"a\\\nb\"")
	if len(ts) != 1 || ts[0].Type != token.StrConst || ts[0].Lexeme != "a\nb" {
		t.Fatalf("got %v", ts)
	}
}

func TestStringErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unterminated", "\"abc\ndef", "Unterminated string constant"},
		{"eof", `"abc`, "EOF in string constant"},
		{"null", "\"a\x00b\"", "String contains null character."},
		{"escaped null", "\"a\\\x00b\"", "String contains escaped null character."},
		{"too long", `"` + strings.Repeat("x", 1025) + `"`, "String constant too long"},
	}
	for _, tt := range tests {
		ts := tokenize(tt.input)
		if len(ts) == 0 {
			t.Errorf("%s: no tokens", tt.name)
			continue
		}
		if ts[0].Type != token.Error || ts[0].Lexeme != tt.want {
			t.Errorf("%s: got %v %q want ERROR %q", tt.name, ts[0].Type, ts[0].Lexeme, tt.want)
		}
	}
}

func TestStringErrorDoesNotDesynchronize(t *testing.T) {
	// the lexer consumes up to the closing quote before erroring
	ts := tokenize("\"a\x00bc\" 42")
	if len(ts) != 2 {
		t.Fatalf("got %d tokens: %v", len(ts), ts)
	}
	if ts[0].Type != token.Error || ts[1].Type != token.IntConst {
		t.Fatalf("got %v", ts)
	}
}

func TestComments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []token.Type
	}{
		{"line", "42 -- rest is gone\n43", []token.Type{token.IntConst, token.IntConst}},
		{"block", "1 (* hidden *) 2", []token.Type{token.IntConst, token.IntConst}},
		{"nested", "1 (* a (* b *) c *) 2", []token.Type{token.IntConst, token.IntConst}},
		{"multiline", "1 (* a\nb\nc *) 2", []token.Type{token.IntConst, token.IntConst}},
	}
	for _, tt := range tests {
		got := kinds(tokenize(tt.input))
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v want %v", tt.name, got, tt.want)
		}
	}
}

func TestEOFInComment(t *testing.T) {
	ts := tokenize("1 (* never closed")
	if len(ts) != 2 || ts[1].Type != token.Error || ts[1].Lexeme != "EOF in comment" {
		t.Fatalf("got %v", ts)
	}
}

func TestUnmatchedCommentClose(t *testing.T) {
	ts := tokenize("1 *) 2")
	if len(ts) != 3 || ts[1].Type != token.Error || ts[1].Lexeme != "Unmatched *)" {
		t.Fatalf("got %v", ts)
	}
}

func TestLineNumbers(t *testing.T) {
	ts := tokenize("a\nb\n\nc (* x\ny *) d")
	wantLines := []int{1, 2, 4, 5}
	if len(ts) != 4 {
		t.Fatalf("got %d tokens", len(ts))
	}
	for i, want := range wantLines {
		if ts[i].Line != want {
			t.Errorf("token %d: line %d want %d", i, ts[i].Line, want)
		}
	}
}

// Tokenizing the concatenation of the lines must equal tokenizing the
// file.
func TestLexerStability(t *testing.T) {
	src := "class Main {\n  x : Int <- 42;\n  f(y : Int) : Int { y + x };\n};\n"
	whole := tokenize(src)
	var lines []*token.Token
	lineNo := 0
	for _, line := range strings.Split(strings.TrimSuffix(src, "\n"), "\n") {
		lineNo++
		for _, tok := range tokenize(line) {
			lines = append(lines, token.New(tok.Type, tok.Lexeme, lineNo))
		}
	}
	if len(whole) != len(lines) {
		t.Fatalf("file: %d tokens, lines: %d tokens", len(whole), len(lines))
	}
	for i := range whole {
		if whole[i].Type != lines[i].Type || whole[i].Lexeme != lines[i].Lexeme || whole[i].Line != lines[i].Line {
			t.Errorf("token %d: %v vs %v", i, whole[i], lines[i])
		}
	}
}
