package music

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidMeter = errors.New("invalid time signature")

var noteValues = map[string]float64{
	"whole":          4,
	"half":           2,
	"quarter":        1,
	"eighth":         0.5,
	"sixteenth":      0.25,
	"thirty_second":  0.125,
	"dotted_half":    3,
	"dotted_quarter": 1.5,
	"dotted_eighth":  0.75,
	"triplet":        1.0 / 3,
	"triplet_eighth": 1.0 / 3,
}

// swung patterns alternate long and short steps.
var patterns = map[string][]float64{
	"swing_eighths":    {2.0 / 3, 1.0 / 3},
	"swing_sixteenths": {1.0 / 3, 1.0 / 6},
}

// NoteValue returns the length in beats of a note value name. Plural and
// "_notes" forms ("quarter_notes", "eighths") are accepted.
func NoteValue(name string) (float64, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, "_notes")
	n = strings.TrimSuffix(n, "_note")
	if v, ok := noteValues[n]; ok {
		return v, true
	}
	if v, ok := noteValues[strings.TrimSuffix(n, "s")]; ok {
		return v, true
	}
	return 0, false
}

// Rhythm returns the repeating beat pattern named by name.
func Rhythm(name string) ([]float64, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if p, ok := patterns[n]; ok {
		return p, true
	}
	if v, ok := NoteValue(n); ok {
		return []float64{v}, true
	}
	return nil, false
}

// Meter is a time signature such as 3/4.
type Meter struct {
	Beats int
	Unit  int
}

var CommonTime = Meter{Beats: 4, Unit: 4}

// ParseMeter reads "n/d" where d is a power of two up to 32.
func ParseMeter(s string) (Meter, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Meter{}, fmt.Errorf("%w: %q", ErrInvalidMeter, s)
	}
	beats, err1 := strconv.Atoi(num)
	unit, err2 := strconv.Atoi(den)
	if err1 != nil || err2 != nil || beats <= 0 || beats > 32 {
		return Meter{}, fmt.Errorf("%w: %q", ErrInvalidMeter, s)
	}
	switch unit {
	case 1, 2, 4, 8, 16, 32:
	default:
		return Meter{}, fmt.Errorf("%w: %q", ErrInvalidMeter, s)
	}
	return Meter{Beats: beats, Unit: unit}, nil
}

func (m Meter) String() string { return strconv.Itoa(m.Beats) + "/" + strconv.Itoa(m.Unit) }

// BarBeats is the length of one bar in quarter-note beats.
func (m Meter) BarBeats() float64 {
	if m.Beats <= 0 || m.Unit <= 0 {
		return 4
	}
	return float64(m.Beats) * 4 / float64(m.Unit)
}

// ParseSpan reads a length such as "8_bars", "2_beats" or "1.5_bars" and
// returns it in beats under meter m.
func ParseSpan(s string, m Meter) (float64, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	for _, u := range []struct {
		suffix string
		scale  float64
	}{
		{"_bars", m.BarBeats()},
		{"_bar", m.BarBeats()},
		{"_beats", 1},
		{"_beat", 1},
	} {
		if num, ok := strings.CutSuffix(n, u.suffix); ok {
			v, err := strconv.ParseFloat(num, 64)
			if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("bad length %q", s)
			}
			return v * u.scale, nil
		}
	}
	return 0, fmt.Errorf("bad length %q (want <n>_bars or <n>_beats)", s)
}
