package parser

import (
	"strings"
	"unicode"

	"github.com/linaldb/linal/pkg/dberr"
)

// tokenKind classifies lexer output.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokSymbol
)

// token is one lexeme with its source position.
type token struct {
	kind  tokenKind
	text  string
	upper string
	line  int
	col   int
}

// lexer walks a statement rune-by-rune. Comments (-- to end of line) are
// skipped; string literals accept single or double quotes.
type lexer struct {
	src  []rune
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src), line: 1, col: 1}
}

// lex tokenizes the whole input.
func (l *lexer) lex() ([]token, error) {
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	line, col := l.line, l.col
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: line, col: col}, nil
	}
	c := l.src[l.pos]

	switch {
	case unicode.IsLetter(c) || c == '_':
		start := l.pos
		for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
			l.advance()
		}
		text := string(l.src[start:l.pos])
		return token{kind: tokIdent, text: text, upper: strings.ToUpper(text), line: line, col: col}, nil

	case unicode.IsDigit(c):
		return l.number(line, col)

	case c == '\'' || c == '"':
		return l.stringLit(c, line, col)

	default:
		return l.symbol(line, col)
	}
}

func (l *lexer) number(line, col int) (token, error) {
	start := l.pos
	seenDot := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if unicode.IsDigit(c) {
			l.advance()
			continue
		}
		if c == '.' && !seenDot && l.pos+1 < len(l.src) && unicode.IsDigit(l.src[l.pos+1]) {
			seenDot = true
			l.advance()
			continue
		}
		if (c == 'e' || c == 'E') && l.pos > start {
			l.advance()
			if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
				l.advance()
			}
			continue
		}
		break
	}
	return token{kind: tokNumber, text: string(l.src[start:l.pos]), line: line, col: col}, nil
}

func (l *lexer) stringLit(quote rune, line, col int) (token, error) {
	l.advance()
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == quote {
			l.advance()
			return token{kind: tokString, text: sb.String(), line: line, col: col}, nil
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.advance()
			c = l.src[l.pos]
		}
		sb.WriteRune(c)
		l.advance()
	}
	return token{}, &dberr.ParseError{Line: line, Column: col, Msg: "unterminated string literal"}
}

func (l *lexer) symbol(line, col int) (token, error) {
	two := ""
	if l.pos+1 < len(l.src) {
		two = string(l.src[l.pos : l.pos+2])
	}
	switch two {
	case "!=", "<=", ">=", "~=", "<>":
		l.advance()
		l.advance()
		if two == "<>" {
			two = "!="
		}
		return token{kind: tokSymbol, text: two, line: line, col: col}, nil
	}
	c := l.src[l.pos]
	switch c {
	case '(', ')', '[', ']', ',', ';', '=', '<', '>', '+', '-', '*', '/', '.', ':':
		l.advance()
		return token{kind: tokSymbol, text: string(c), line: line, col: col}, nil
	}
	return token{}, &dberr.ParseError{Line: line, Column: col, Msg: "unexpected character " + string(c)}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '-' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
			continue
		}
		if !unicode.IsSpace(c) {
			return
		}
		l.advance()
	}
}

func (l *lexer) advance() {
	if l.src[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}
