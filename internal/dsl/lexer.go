package dsl

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokColon
	tokComma
	tokSemi
	tokLBrace
	tokRBrace
	tokLBrack
	tokRBrack
	tokIllegal
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokWord:
		return "word"
	case tokString:
		return "string"
	case tokColon:
		return "':'"
	case tokComma:
		return "','"
	case tokSemi:
		return "';'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLBrack:
		return "'['"
	case tokRBrack:
		return "']'"
	}
	return "illegal character"
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
	// first is set on the first token of a source line.
	first bool
}

func (t token) pos() Pos { return Pos{Line: t.line, Col: t.col} }

type lexer struct {
	src   string
	i     int
	line  int
	col   int
	fresh bool
	diags []Diagnostic
}

// lex splits src into tokens. It never fails: bad input becomes tokIllegal
// plus a diagnostic, and the stream always ends with tokEOF.
func lex(src string) ([]token, []Diagnostic) {
	lx := &lexer{src: src, line: 1, col: 1, fresh: true}
	var out []token
	for {
		t := lx.next()
		out = append(out, t)
		if t.kind == tokEOF {
			return out, lx.diags
		}
	}
}

func (lx *lexer) peekByte(off int) byte {
	if lx.i+off < len(lx.src) {
		return lx.src[lx.i+off]
	}
	return 0
}

func (lx *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(lx.src[lx.i:])
	lx.i += size
	if r == '\n' {
		lx.line++
		lx.col = 1
		lx.fresh = true
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.i < len(lx.src) {
		c := lx.src[lx.i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			lx.advance()
		case c == '#' || (c == '/' && lx.peekByte(1) == '/'):
			for lx.i < len(lx.src) && lx.src[lx.i] != '\n' {
				lx.advance()
			}
		default:
			return
		}
	}
}

func (lx *lexer) next() token {
	lx.skipSpaceAndComments()
	t := token{line: lx.line, col: lx.col, first: lx.fresh}
	if lx.i >= len(lx.src) {
		t.kind = tokEOF
		return t
	}
	lx.fresh = false
	start := lx.i
	c := lx.src[lx.i]
	if k, ok := punct[c]; ok {
		lx.advance()
		t.kind = k
		t.text = string(c)
		return t
	}
	switch c {
	case '"':
		return lx.str(t)
	case '\'':
		return lx.rawStr(t)
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.i:])
	if !isWordRune(r) {
		lx.advance()
		t.kind = tokIllegal
		t.text = string(r)
		lx.diags = append(lx.diags, Diagnostic{Line: t.line, Col: t.col, Severity: SeverityError,
			Message: "unexpected character " + strconv.QuoteRune(r)})
		return t
	}
	for lx.i < len(lx.src) {
		r, _ := utf8.DecodeRuneInString(lx.src[lx.i:])
		if !isWordRune(r) || (r == '/' && lx.peekByte(1) == '/') {
			break
		}
		lx.advance()
	}
	t.kind = tokWord
	t.text = lx.src[start:lx.i]
	return t
}

func (lx *lexer) str(t token) token {
	start := lx.i
	lx.advance()
	for lx.i < len(lx.src) {
		c := lx.src[lx.i]
		if c == '\n' {
			break
		}
		lx.advance()
		if c == '\\' && lx.i < len(lx.src) && lx.src[lx.i] != '\n' {
			lx.advance()
			continue
		}
		if c == '"' {
			s, err := strconv.Unquote(lx.src[start:lx.i])
			if err != nil {
				break
			}
			t.kind = tokString
			t.text = s
			return t
		}
	}
	t.kind = tokIllegal
	t.text = lx.src[start:lx.i]
	lx.diags = append(lx.diags, Diagnostic{Line: t.line, Col: t.col, Severity: SeverityError,
		Message: "unterminated or invalid string"})
	return t
}

// rawStr reads a single-quoted string. There are no escapes inside.
func (lx *lexer) rawStr(t token) token {
	start := lx.i
	lx.advance()
	for lx.i < len(lx.src) && lx.src[lx.i] != '\n' {
		c := lx.src[lx.i]
		lx.advance()
		if c == '\'' {
			t.kind = tokString
			t.text = lx.src[start+1 : lx.i-1]
			return t
		}
	}
	t.kind = tokIllegal
	t.text = lx.src[start:lx.i]
	lx.diags = append(lx.diags, Diagnostic{Line: t.line, Col: t.col, Severity: SeverityError,
		Message: "unterminated string"})
	return t
}

var punct = map[byte]tokenKind{
	':': tokColon,
	',': tokComma,
	';': tokSemi,
	'{': tokLBrace,
	'}': tokRBrace,
	'[': tokLBrack,
	']': tokRBrack,
}

func isWordRune(r rune) bool {
	switch r {
	case '_', '#', '.', '+', '-', '/':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
