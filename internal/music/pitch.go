package music

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	MinPitch = 0
	MaxPitch = 127
	MiddleC  = 60
)

var ErrInvalidPitch = errors.New("invalid pitch")

var letterOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ValidPitch reports whether p is inside the MIDI note range.
func ValidPitch(p int) bool { return p >= MinPitch && p <= MaxPitch }

// PitchName renders p in scientific notation with sharps, C4 = 60.
func PitchName(p int) string {
	octave := floorDiv(p, 12) - 1
	return sharpNames[p-floorDiv(p, 12)*12] + strconv.Itoa(octave)
}

// ParsePitch reads scientific pitch notation ("C4", "F#5", "Bb3", "C-1").
// Letters are case-insensitive; '#' raises and 'b' lowers by a semitone.
func ParsePitch(s string) (int, error) {
	class, rest, err := parsePitchClass(s)
	if err != nil {
		return 0, err
	}
	if rest == "" {
		return 0, fmt.Errorf("%w: %q has no octave", ErrInvalidPitch, s)
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q has a bad octave", ErrInvalidPitch, s)
	}
	p := (octave+1)*12 + class
	if !ValidPitch(p) {
		return 0, fmt.Errorf("%w: %q is outside %d..%d", ErrInvalidPitch, s, MinPitch, MaxPitch)
	}
	return p, nil
}

// ParsePitchClass reads a bare note name such as "Eb" and returns its
// semitone offset from C, which may fall outside 0..11 for "Cb" or "B#".
func ParsePitchClass(s string) (int, error) {
	class, rest, err := parsePitchClass(s)
	if err != nil {
		return 0, err
	}
	if rest != "" {
		return 0, fmt.Errorf("%w: unexpected %q after note name", ErrInvalidPitch, rest)
	}
	return class, nil
}

func parsePitchClass(s string) (int, string, error) {
	if s == "" {
		return 0, "", fmt.Errorf("%w: empty name", ErrInvalidPitch)
	}
	class, ok := letterOffsets[lower(s[0])]
	if !ok {
		return 0, "", fmt.Errorf("%w: %q does not start with a note letter", ErrInvalidPitch, s)
	}
	i := 1
	for i < len(s) {
		switch s[i] {
		case '#':
			class++
		case 'b':
			class--
		default:
			return class, s[i:], nil
		}
		i++
	}
	return class, "", nil
}

// Frequency returns the equal-tempered frequency of p with A4 = 440 Hz.
func Frequency(p int) float64 {
	return 440 * math.Pow(2, float64(p-69)/12)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
