package music

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidChord = errors.New("invalid chord symbol")

// DefaultChordOctave places chord roots around middle C.
const DefaultChordOctave = 4

// chordShapes maps a quality suffix to semitone intervals above the root.
var chordShapes = map[string][]int{
	"":      {0, 4, 7},
	"maj":   {0, 4, 7},
	"M":     {0, 4, 7},
	"m":     {0, 3, 7},
	"min":   {0, 3, 7},
	"-":     {0, 3, 7},
	"dim":   {0, 3, 6},
	"aug":   {0, 4, 8},
	"+":     {0, 4, 8},
	"sus2":  {0, 2, 7},
	"sus4":  {0, 5, 7},
	"sus":   {0, 5, 7},
	"5":     {0, 7},
	"6":     {0, 4, 7, 9},
	"m6":    {0, 3, 7, 9},
	"7":     {0, 4, 7, 10},
	"7sus4": {0, 5, 7, 10},
	"maj7":  {0, 4, 7, 11},
	"M7":    {0, 4, 7, 11},
	"m7":    {0, 3, 7, 10},
	"min7":  {0, 3, 7, 10},
	"m7b5":  {0, 3, 6, 10},
	"dim7":  {0, 3, 6, 9},
	"9":     {0, 4, 7, 10, 14},
	"maj9":  {0, 4, 7, 11, 14},
	"m9":    {0, 3, 7, 10, 14},
	"add9":  {0, 4, 7, 14},
}

// Chord expands a chord symbol such as "Am7" or "C/G" into pitches, lowest
// first. The root sits in octave; a slash bass is placed one octave lower.
func Chord(symbol string, octave int) ([]int, error) {
	base, bass, hasBass := strings.Cut(strings.TrimSpace(symbol), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChord, symbol)
	}
	rootEnd := 1
	for rootEnd < len(base) && (base[rootEnd] == '#' || base[rootEnd] == 'b') {
		rootEnd++
	}
	class, err := ParsePitchClass(base[:rootEnd])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidChord, symbol, err)
	}
	shape, ok := chordShapes[base[rootEnd:]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown quality %q in %q", ErrInvalidChord, base[rootEnd:], symbol)
	}
	root := (octave+1)*12 + class
	pitches := make([]int, 0, len(shape)+1)
	if hasBass {
		bassClass, err := ParsePitchClass(strings.TrimSpace(bass))
		if err != nil {
			return nil, fmt.Errorf("%w: bad bass in %q", ErrInvalidChord, symbol)
		}
		pitches = append(pitches, octave*12+bassClass)
	}
	for _, iv := range shape {
		pitches = append(pitches, root+iv)
	}
	for _, p := range pitches {
		if !ValidPitch(p) {
			return nil, fmt.Errorf("%w: %q reaches pitch %d in octave %d", ErrInvalidChord, symbol, p, octave)
		}
	}
	return pitches, nil
}
