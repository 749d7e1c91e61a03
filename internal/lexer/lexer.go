package lexer

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"coolc/internal/token"
)

// MaxStrConst is the string-constant size limit, terminator included.
const MaxStrConst = 1024

// lexSpec splits a line fragment free of strings and comments into raw
// lexemes in one sweep. Classification happens afterwards, so alternatives
// only need to cover the shapes; Longest() gives leftmost-longest.
var lexSpec = func() *regexp.Regexp {
	r := regexp.MustCompile(
		`(?i:class|else|fi|if|inherits|in|let|loop|pool|then|while|case|esac|of|not|new|isvoid)` +
			`|=>|<=|<-|[0-9]+|[A-Za-z][A-Za-z0-9_]*|[ \f\r\t\v]+|\*\)` +
			"|[;{}:().@~*/+\\-<=,]|.")
	r.Longest()
	return r
}()

// Lexer produces tokens from one source file, reading it a line at a time.
// A small queue holds the tokens minted from the current line so Next is
// O(1) amortized.
type Lexer struct {
	fileName string
	scanner  *bufio.Scanner
	file     *os.File

	line    int
	current string // unconsumed remainder of the current line
	queue   []*token.Token
	eof     bool
}

func New(fileName string) (*Lexer, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "lexer: can't open file %s", fileName)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Lexer{fileName: fileName, scanner: sc, file: f}, nil
}

// NewFromSource lexes an in-memory buffer; used by tests.
func NewFromSource(fileName, src string) *Lexer {
	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Lexer{fileName: fileName, scanner: sc}
}

func (l *Lexer) FileName() string { return l.fileName }

// Next returns the next token or nil at end of file.
func (l *Lexer) Next() *token.Token {
	for len(l.queue) == 0 {
		if l.current == "" && !l.nextLine() {
			l.close()
			return nil
		}
		for l.current != "" && len(l.queue) == 0 {
			l.tokenizeChunk()
		}
	}
	t := l.queue[0]
	l.queue = l.queue[1:]
	return t
}

func (l *Lexer) close() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// nextLine fetches one more source line. Line numbers are 1-based and
// advance on every newline consumed, including those inside literals and
// comments.
func (l *Lexer) nextLine() bool {
	if l.eof {
		return false
	}
	if !l.scanner.Scan() {
		l.eof = true
		return false
	}
	l.current = l.scanner.Text()
	l.line++
	return true
}

// tokenizeChunk splits the current line remainder at the earliest of the
// three sentinels: string start, block-comment start, line-comment start.
// The prefix is tokenized by the regex sweep; the suffix goes to the
// specialized recognizer.
func (l *Lexer) tokenizeChunk() {
	str := strings.IndexByte(l.current, '"')
	blk := strings.Index(l.current, "(*")
	lin := strings.Index(l.current, "--")

	cut := len(l.current)
	kind := byte(0)
	if str >= 0 && str < cut {
		cut, kind = str, '"'
	}
	if blk >= 0 && blk < cut {
		cut, kind = blk, '('
	}
	if lin >= 0 && lin < cut {
		cut, kind = lin, '-'
	}

	prefix := l.current[:cut]
	l.tokenizePrefix(prefix)

	switch kind {
	case '"':
		l.current = l.current[cut+1:]
		l.queue = append(l.queue, l.matchString())
	case '(':
		l.current = l.current[cut+2:]
		if t := l.skipComment(); t != nil {
			l.queue = append(l.queue, t)
		}
	case '-':
		l.current = "" // line comment: discard to end of line
	default:
		l.current = ""
	}
}

func (l *Lexer) tokenizePrefix(prefix string) {
	for _, lexeme := range lexSpec.FindAllString(prefix, -1) {
		if t := l.classify(lexeme); t != nil {
			l.queue = append(l.queue, t)
		}
	}
}

func (l *Lexer) classify(lexeme string) *token.Token {
	c := lexeme[0]
	switch {
	case c == ' ' || c == '\t' || c == '\f' || c == '\r' || c == '\v':
		return nil
	case c >= '0' && c <= '9':
		return token.New(token.IntConst, lexeme, l.line)
	case isLetter(c):
		lower := strings.ToLower(lexeme)
		if typ, ok := token.KeywordType(lower); ok {
			return token.New(typ, lower, l.line)
		}
		// true/false are boolean literals only with a lowercase initial.
		if (lower == "true" || lower == "false") && c >= 'a' && c <= 'z' {
			return token.New(token.BoolConst, lower, l.line)
		}
		if c >= 'A' && c <= 'Z' {
			return token.New(token.TypeID, lexeme, l.line)
		}
		return token.New(token.ObjectID, lexeme, l.line)
	case lexeme == "*)":
		return token.New(token.Error, "Unmatched *)", l.line)
	case lexeme == "=>":
		return token.New(token.Darrow, lexeme, l.line)
	case lexeme == "<=":
		return token.New(token.LE, lexeme, l.line)
	case lexeme == "<-":
		return token.New(token.Assign, lexeme, l.line)
	}
	if typ, ok := punctuators[lexeme]; ok {
		return token.New(typ, lexeme, l.line)
	}
	return token.New(token.Error, lexeme, l.line)
}

var punctuators = map[string]token.Type{
	";": token.Semicolon, "{": token.LBrace, "}": token.RBrace,
	":": token.Colon, "(": token.LParen, ")": token.RParen,
	".": token.Dot, "@": token.At, "~": token.Tilde,
	"*": token.Star, "/": token.Slash, "+": token.Plus, "-": token.Minus,
	"<": token.LT, "=": token.Equal, ",": token.Comma,
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// matchString consumes a string literal whose opening quote has already
// been eaten. On error it keeps consuming up to the delimiter so one bad
// literal does not desynchronize the stream.
func (l *Lexer) matchString() *token.Token {
	var (
		built    strings.Builder
		errMsg   string
		errLine  int
		escape   bool
	)
	setErr := func(msg string) {
		if errMsg == "" {
			errMsg = msg
			errLine = l.line
		}
	}
	appendIfCan := func(s string) {
		if errMsg != "" {
			return
		}
		if built.Len()+len(s) > MaxStrConst-1 {
			setErr("String constant too long")
			return
		}
		built.WriteString(s)
	}

	for {
		if l.current == "" {
			if !l.nextLine() {
				if errMsg == "" {
					errMsg = "EOF in string constant"
					errLine = l.line
				}
				return token.New(token.Error, errMsg, errLine)
			}
			if !escape {
				// an unescaped newline terminates the literal
				if errMsg == "" {
					errMsg = "Unterminated string constant"
					errLine = l.line
				}
				return token.New(token.Error, errMsg, errLine)
			}
			appendIfCan("\n")
			escape = false
			continue
		}

		if escape {
			ch := l.current[0]
			l.current = l.current[1:]
			if ch == 0 {
				setErr("String contains escaped null character.")
			} else {
				appendIfCan(unescape(ch))
			}
			escape = false
			continue
		}

		i := strings.IndexAny(l.current, "\"\\\x00")
		if i < 0 {
			appendIfCan(l.current)
			l.current = ""
			continue
		}
		ch := l.current[i]
		appendIfCan(l.current[:i])
		l.current = l.current[i+1:]
		switch ch {
		case '"':
			if errMsg != "" {
				return token.New(token.Error, errMsg, errLine)
			}
			return token.New(token.StrConst, built.String(), l.line)
		case '\\':
			escape = true
		case 0:
			setErr("String contains null character.")
		}
	}
}

func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 'b':
		return "\b"
	case 't':
		return "\t"
	case 'f':
		return "\f"
	case '\\':
		return "\\"
	}
	return string(c)
}

// skipComment consumes a nested block comment whose opening "(*" has been
// eaten. Returns nil on a clean close.
func (l *Lexer) skipComment() *token.Token {
	depth := 1
	for depth > 0 {
		open := strings.Index(l.current, "(*")
		close := strings.Index(l.current, "*)")

		switch {
		case close >= 0 && (open < 0 || close < open):
			depth--
			l.current = l.current[close+2:]
		case open >= 0:
			depth++
			l.current = l.current[open+2:]
		default:
			if !l.nextLine() {
				l.current = ""
				return token.New(token.Error, "EOF in comment", l.line)
			}
		}
	}
	return nil
}
