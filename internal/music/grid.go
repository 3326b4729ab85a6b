package music

import "math"

const (
	MinTempo     = 60.0
	MaxTempo     = 200.0
	DefaultTempo = 120.0

	MinGridResolution     = 1
	MaxGridResolution     = 32
	DefaultGridResolution = 4
)

// ClampTempo keeps bpm inside [MinTempo, MaxTempo]. NaN maps to DefaultTempo.
func ClampTempo(bpm float64) float64 {
	switch {
	case math.IsNaN(bpm):
		return DefaultTempo
	case bpm < MinTempo:
		return MinTempo
	case bpm > MaxTempo:
		return MaxTempo
	}
	return bpm
}

// ClampGridResolution keeps n inside [MinGridResolution, MaxGridResolution].
func ClampGridResolution(n int) int {
	if n < MinGridResolution {
		return MinGridResolution
	}
	if n > MaxGridResolution {
		return MaxGridResolution
	}
	return n
}

// BeatSeconds is the length of one beat at tempo.
func BeatSeconds(tempo float64) float64 {
	return 60 / ClampTempo(tempo)
}

// GridStep is the length of one grid subdivision in seconds.
func GridStep(tempo float64, resolution int) float64 {
	return BeatSeconds(tempo) / float64(ClampGridResolution(resolution))
}

// Snap rounds t to the nearest multiple of step. A non-positive step
// leaves t untouched.
func Snap(t, step float64) float64 {
	if !(step > 0) {
		return t
	}
	return math.Round(t/step) * step
}

// Grid bundles the settings that define snapping.
type Grid struct {
	Tempo      float64
	Resolution int
	Enabled    bool
}

func (g Grid) Step() float64 { return GridStep(g.Tempo, g.Resolution) }

// Snap is the identity when snapping is disabled.
func (g Grid) Snap(t float64) float64 {
	if !g.Enabled {
		return t
	}
	return Snap(t, g.Step())
}
