// Package dsl reads and writes the ChordCraft composition language: a header
// of tempo/key/time_signature fields followed by named blocks (section,
// melody, bass_line) that lower to note events.
package dsl

import (
	"fmt"

	"github.com/cbegin/chordcraft-go/internal/music"
	"github.com/cbegin/chordcraft-go/internal/note"
)

type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	}
	return "unknown"
}

// Diagnostic is a problem found at a 1-based line and column.
type Diagnostic struct {
	Line     int
	Col      int
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s: %s", d.Line, d.Col, d.Severity, d.Message)
}

// Header holds the document-level fields.
type Header struct {
	Tempo         float64
	Key           string
	TimeSignature string
}

// Meter parses TimeSignature, falling back to 4/4.
func (h Header) Meter() music.Meter {
	m, err := music.ParseMeter(h.TimeSignature)
	if err != nil {
		return music.CommonTime
	}
	return m
}

// Result is everything Parse learned from a document. Notes never carry ids.
type Result struct {
	Header      Header
	Notes       []note.Note
	Diagnostics []Diagnostic
	// Effects names the master effects requested anywhere in the text.
	Effects []string
}

func (r Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

type Config struct {
	DefaultTempo         float64
	DefaultKey           string
	DefaultTimeSignature string
	DefaultTrack         string
	DefaultVelocity      float64
	ChordOctave          int
	// MaxNotes bounds how many notes one document may generate. A block that
	// would go past it is dropped with an error.
	MaxNotes int
}

// DefaultMaxNotes is far beyond any hand-written arrangement.
const DefaultMaxNotes = 50000

func DefaultConfig() Config {
	return Config{
		DefaultTempo:         music.DefaultTempo,
		DefaultKey:           "C_major",
		DefaultTimeSignature: "4/4",
		DefaultTrack:         note.DefaultTrackID,
		DefaultVelocity:      0.8,
		ChordOctave:          music.DefaultChordOctave,
		MaxNotes:             DefaultMaxNotes,
	}
}

// Normalize replaces unset or invalid fields with their defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.DefaultTempo <= 0 {
		c.DefaultTempo = d.DefaultTempo
	}
	if c.DefaultKey == "" {
		c.DefaultKey = d.DefaultKey
	}
	if c.DefaultTimeSignature == "" {
		c.DefaultTimeSignature = d.DefaultTimeSignature
	}
	if c.DefaultTrack == "" {
		c.DefaultTrack = d.DefaultTrack
	}
	if !(c.DefaultVelocity > 0 && c.DefaultVelocity <= 1) {
		c.DefaultVelocity = d.DefaultVelocity
	}
	if c.ChordOctave == 0 {
		c.ChordOctave = d.ChordOctave
	}
	if c.MaxNotes <= 0 {
		c.MaxNotes = d.MaxNotes
	}
	return c
}
