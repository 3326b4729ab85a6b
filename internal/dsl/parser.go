package dsl

import (
	"fmt"
	"strings"
)

// syntaxError aborts the current construct; the enclosing block or the top
// level recovers from it.
type syntaxError struct {
	pos Pos
	msg string
}

type syntaxParser struct {
	toks  []token
	i     int
	depth int
	diags []Diagnostic
}

// parseFile builds the AST for src. Syntax errors are reported as
// diagnostics and never stop the parse.
func parseFile(src string) (*File, []Diagnostic) {
	toks, diags := lex(src)
	p := &syntaxParser{toks: toks, diags: diags}
	f := &File{}
	for p.peek().kind != tokEOF {
		start := p.i
		if err := p.topLevel(f); err != nil {
			p.report(err)
			p.syncTop(start)
		}
	}
	return f, p.diags
}

func (p *syntaxParser) peek() token { return p.toks[p.i] }

func (p *syntaxParser) peekAt(n int) token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *syntaxParser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	switch t.kind {
	case tokLBrace, tokLBrack:
		p.depth++
	case tokRBrace, tokRBrack:
		p.depth--
	}
	return t
}

func (p *syntaxParser) report(err *syntaxError) {
	p.diags = append(p.diags, Diagnostic{Line: err.pos.Line, Col: err.pos.Col, Severity: SeverityError, Message: err.msg})
}

func unexpected(t token, want string) *syntaxError {
	got := t.kind.String()
	if t.kind == tokWord || t.kind == tokIllegal {
		got = fmt.Sprintf("%q", t.text)
	}
	return &syntaxError{pos: t.pos(), msg: fmt.Sprintf("expected %s, found %s", want, got)}
}

func (p *syntaxParser) expect(k tokenKind) (token, *syntaxError) {
	t := p.peek()
	if t.kind != k {
		return t, unexpected(t, k.String())
	}
	return p.next(), nil
}

// startsLine reports whether the current token is a word opening a new line,
// the point where recovery resumes.
func (p *syntaxParser) startsLine() bool {
	t := p.peek()
	return t.kind == tokWord && t.first
}

// syncTop skips to the next line-leading word, consuming at least one token
// when the failed construct consumed none.
func (p *syntaxParser) syncTop(start int) {
	if p.i == start {
		p.next()
	}
	for {
		t := p.peek()
		if t.kind == tokEOF || (t.kind == tokWord && t.first) {
			p.depth = 0
			return
		}
		p.next()
	}
}

func isPlay(t token) bool { return t.kind == tokWord && strings.EqualFold(t.text, "PLAY") }

func (p *syntaxParser) topLevel(f *File) *syntaxError {
	t := p.peek()
	switch t.kind {
	case tokSemi, tokComma:
		p.next()
		return nil
	case tokWord:
	default:
		return unexpected(t, "a field, block or PLAY statement")
	}
	if isPlay(t) {
		pl, err := p.play()
		if err != nil {
			return err
		}
		f.Plays = append(f.Plays, pl)
		return nil
	}
	if p.peekAt(1).kind == tokColon {
		fd, err := p.field()
		if err != nil {
			return err
		}
		f.Header = append(f.Header, fd)
		return nil
	}
	b, err := p.block()
	if err != nil {
		return err
	}
	f.Blocks = append(f.Blocks, b)
	return nil
}

func (p *syntaxParser) block() (*Block, *syntaxError) {
	kind := p.next()
	b := &Block{Pos: kind.pos(), Kind: kind.text}
	if t := p.peek(); t.kind == tokWord || t.kind == tokString {
		b.Name = p.next().text
	}
	if t := p.peek(); t.kind != tokLBrace {
		return nil, unexpected(t, fmt.Sprintf("':' or '{' after %q", kind.text))
	}
	p.next()
	body := p.depth
	for {
		t := p.peek()
		switch {
		case t.kind == tokRBrace:
			p.next()
			return b, nil
		case t.kind == tokEOF:
			p.report(&syntaxError{pos: b.Pos, msg: fmt.Sprintf("block %q is not closed", b.Kind)})
			b.Broken = true
			return b, nil
		case t.kind == tokComma || t.kind == tokSemi:
			p.next()
			continue
		}
		var err *syntaxError
		if isPlay(t) {
			var pl *Play
			if pl, err = p.play(); err == nil {
				b.Plays = append(b.Plays, pl)
			}
		} else {
			var fd *Field
			if fd, err = p.field(); err == nil {
				b.Fields = append(b.Fields, fd)
			}
		}
		if err != nil {
			p.report(err)
			b.Broken = true
			if p.syncBlock(body) {
				return b, nil
			}
		}
	}
}

// syncBlock skips to the next line-leading word inside the block or past the
// block's closing brace. It reports whether the block was closed.
func (p *syntaxParser) syncBlock(body int) bool {
	if p.peek().kind != tokEOF && !p.startsLine() {
		p.next()
	}
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return false
		case t.kind == tokRBrace && p.depth == body:
			p.next()
			return true
		case p.startsLine():
			p.depth = body
			return false
		}
		p.next()
	}
}

func (p *syntaxParser) field() (*Field, *syntaxError) {
	key, err := p.expect(tokWord)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon); err != nil {
		return nil, err
	}
	v, err := p.value(key.text)
	if err != nil {
		return nil, err
	}
	return &Field{Pos: key.pos(), Key: key.text, Value: v}, nil
}

func (p *syntaxParser) value(key string) (Value, *syntaxError) {
	t := p.peek()
	if t.kind == tokWord && t.first && p.peekAt(1).kind == tokColon {
		return nil, &syntaxError{pos: t.pos(), msg: fmt.Sprintf("missing value for %q", key)}
	}
	switch t.kind {
	case tokWord, tokString:
		p.next()
		return &Scalar{Pos: t.pos(), Text: t.text, Quoted: t.kind == tokString}, nil
	case tokLBrack:
		return p.list()
	case tokLBrace:
		return p.object()
	}
	return nil, unexpected(t, fmt.Sprintf("a value for %q", key))
}

func (p *syntaxParser) list() (Value, *syntaxError) {
	open := p.next()
	l := &List{Pos: open.pos()}
	for {
		if p.peek().kind == tokRBrack {
			p.next()
			return l, nil
		}
		item, err := p.listItem()
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, item)
		switch t := p.peek(); t.kind {
		case tokComma:
			p.next()
		case tokRBrack:
		default:
			return nil, unexpected(t, "',' or ']'")
		}
	}
}

func (p *syntaxParser) listItem() (Value, *syntaxError) {
	t := p.peek()
	if t.kind == tokWord && p.peekAt(1).kind == tokColon {
		p.next()
		p.next()
		v, err := p.value(t.text)
		if err != nil {
			return nil, err
		}
		return &Pair{Pos: t.pos(), Key: t.text, Value: v}, nil
	}
	return p.value("list item")
}

func (p *syntaxParser) object() (Value, *syntaxError) {
	open := p.next()
	o := &Object{Pos: open.pos()}
	for {
		switch p.peek().kind {
		case tokRBrace:
			p.next()
			return o, nil
		case tokComma, tokSemi:
			p.next()
			continue
		}
		fd, err := p.field()
		if err != nil {
			return nil, err
		}
		o.Fields = append(o.Fields, fd)
	}
}

func (p *syntaxParser) play() (*Play, *syntaxError) {
	kw := p.next()
	pl := &Play{Pos: kw.pos()}
	arg := func(label string) (*Scalar, *syntaxError) {
		t := p.peek()
		if t.kind != tokWord || t.first {
			return nil, unexpected(t, label)
		}
		p.next()
		return &Scalar{Pos: t.pos(), Text: t.text}, nil
	}
	keyword := func(word string) *syntaxError {
		t := p.peek()
		if t.kind != tokWord || !strings.EqualFold(t.text, word) {
			return unexpected(t, word)
		}
		p.next()
		return nil
	}
	var err *syntaxError
	if pl.Pitch, err = arg("a pitch after PLAY"); err != nil {
		return nil, err
	}
	if err = keyword("FOR"); err != nil {
		return nil, err
	}
	if pl.Duration, err = arg("a duration after FOR"); err != nil {
		return nil, err
	}
	if err = keyword("AT"); err != nil {
		return nil, err
	}
	if pl.At, err = arg("a time after AT"); err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokWord && !t.first && strings.EqualFold(t.text, "VELOCITY") {
		p.next()
		if pl.Velocity, err = arg("a number after VELOCITY"); err != nil {
			return nil, err
		}
	}
	return pl, nil
}
