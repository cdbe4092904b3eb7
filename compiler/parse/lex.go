package parse

import (
	"strconv"

	"tlog.app/go/errors"
)

type (
	Spaces uint64

	tokKind uint8

	token struct {
		kind tokKind
		text string
		col  int
	}

	// line is the token cursor over one source line.
	line struct {
		toks []token
		i    int
		n    int // 1 based line number
	}
)

const (
	tEOL tokKind = iota
	tWord
	tNum
	tPunct
)

var SpaceTab = NewSpaces(' ', '\t', '\r')

func NewSpaces(skip ...byte) (ss Spaces) {
	for _, q := range skip {
		if q >= 64 {
			panic("too high char code")
		}

		ss |= 1 << q
	}

	return
}

func (s Spaces) Skip(b []byte, st int) (i int) {
	i = st

	for i < len(b) && b[i] < 64 && s&(1<<b[i]) != 0 {
		i++
	}

	return
}

func isWord(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '.'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// lex splits a line into tokens. A # starts a comment.
func lex(b []byte, n int) (l *line, err error) {
	l = &line{n: n}

	for i := SpaceTab.Skip(b, 0); i < len(b); i = SpaceTab.Skip(b, i) {
		st := i
		c := b[i]

		switch {
		case c == '#':
			return l, nil
		case isDigit(c) || c == '-' && i+1 < len(b) && isDigit(b[i+1]):
			i++

			for i < len(b) && isWord(b[i]) {
				i++
			}

			l.toks = append(l.toks, token{kind: tNum, text: string(b[st:i]), col: st + 1})
		case isWord(c):
			for i < len(b) && isWord(b[i]) {
				i++
			}

			l.toks = append(l.toks, token{kind: tWord, text: string(b[st:i]), col: st + 1})
		case c == '-' && i+1 < len(b) && b[i+1] == '>':
			i += 2

			l.toks = append(l.toks, token{kind: tPunct, text: "->", col: st + 1})
		case c == '=' && i+1 < len(b) && b[i+1] == '=':
			i += 2

			l.toks = append(l.toks, token{kind: tPunct, text: "==", col: st + 1})
		case c == '=' || c == ',' || c == '[' || c == ']' || c == '+' || c == '(' || c == ')':
			i++

			l.toks = append(l.toks, token{kind: tPunct, text: string(c), col: st + 1})
		default:
			return nil, &Error{Line: n, Col: st + 1, Err: errors.New("unexpected %q", c)}
		}
	}

	return l, nil
}

func (l *line) peek() token {
	if l.i == len(l.toks) {
		return token{kind: tEOL, col: l.endCol()}
	}

	return l.toks[l.i]
}

func (l *line) next() token {
	t := l.peek()

	if l.i < len(l.toks) {
		l.i++
	}

	return t
}

func (l *line) endCol() int {
	if len(l.toks) == 0 {
		return 1
	}

	t := l.toks[len(l.toks)-1]

	return t.col + len(t.text)
}

func (l *line) eol() bool { return l.i == len(l.toks) }

// accept consumes the next token if it is text.
func (l *line) accept(text string) bool {
	if l.peek().text != text || l.eol() {
		return false
	}

	l.i++

	return true
}

func (l *line) errorf(t token, format string, args ...any) error {
	return &Error{Line: l.n, Col: t.col, Err: errors.New(format, args...)}
}

func (l *line) expect(text string) error {
	t := l.next()
	if t.text != text || t.kind == tEOL {
		return l.errorf(t, "%q expected", text)
	}

	return nil
}

func (l *line) word() (string, error) {
	t := l.next()
	if t.kind != tWord {
		return "", l.errorf(t, "word expected")
	}

	return t.text, nil
}

func (l *line) num() (int64, error) {
	t := l.next()
	if t.kind != tNum {
		return 0, l.errorf(t, "number expected")
	}

	v, err := strconv.ParseInt(t.text, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(t.text, 0, 64)
		if uerr != nil {
			return 0, l.errorf(t, "bad number %q", t.text)
		}

		v = int64(u)
	}

	return v, nil
}

func (l *line) end() error {
	if t := l.peek(); t.kind != tEOL {
		return l.errorf(t, "unexpected %q", t.text)
	}

	return nil
}
