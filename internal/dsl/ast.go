package dsl

import "strings"

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

// File is a parsed document. Header holds the top-level fields, Blocks and
// Plays keep source order.
type File struct {
	Header []*Field
	Blocks []*Block
	Plays  []*Play
}

// Block is `kind [name] { ... }`. Broken is set when the body had a syntax
// error; such a block contributes no notes.
type Block struct {
	Pos    Pos
	Kind   string
	Name   string
	Fields []*Field
	Plays  []*Play
	Broken bool
}

func (b *Block) Field(key string) *Field {
	for _, f := range b.Fields {
		if strings.EqualFold(f.Key, key) {
			return f
		}
	}
	return nil
}

type Field struct {
	Pos   Pos
	Key   string
	Value Value
}

// Play is the line-oriented form `PLAY C4 FOR 0.5s AT 1s [VELOCITY 0.8]`.
type Play struct {
	Pos      Pos
	Pitch    *Scalar
	Duration *Scalar
	At       *Scalar
	Velocity *Scalar
}

// Value is one of *Scalar, *List, *Object or *Pair.
type Value interface {
	position() Pos
}

type Scalar struct {
	Pos    Pos
	Text   string
	Quoted bool
}

type List struct {
	Pos   Pos
	Items []Value
}

type Object struct {
	Pos    Pos
	Fields []*Field
}

func (o *Object) Field(key string) *Field {
	for _, f := range o.Fields {
		if strings.EqualFold(f.Key, key) {
			return f
		}
	}
	return nil
}

// Pair is a `key: value` list item, as in `effects: [reverb: 0.8]`.
type Pair struct {
	Pos   Pos
	Key   string
	Value Value
}

func (s *Scalar) position() Pos { return s.Pos }
func (l *List) position() Pos   { return l.Pos }
func (o *Object) position() Pos { return o.Pos }
func (p *Pair) position() Pos   { return p.Pos }
