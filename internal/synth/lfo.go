package synth

import "math"

// Shape is an LFO waveform.
type Shape int

const (
	ShapeSine Shape = iota
	ShapeTriangle
	ShapeSquare
	ShapeSaw
)

// LFO is a low-frequency oscillator shared by everything it modulates.
// Sample returns values in [-depth, +depth].
type LFO struct {
	shape  Shape
	rateHz float64
	depth  float64
	phase  float64
}

func NewLFO(shape Shape, rateHz, depth float64) LFO {
	return LFO{shape: shape, rateHz: rateHz, depth: depth}
}

func (l *LFO) Active() bool { return l.depth != 0 && l.rateHz > 0 }

func (l *LFO) Sample(sampleRate float64) float64 {
	if !l.Active() || sampleRate <= 0 {
		return 0
	}
	var v float64
	switch l.shape {
	case ShapeTriangle:
		v = 1 - 4*math.Abs(l.phase-0.5)
	case ShapeSquare:
		v = 1
		if l.phase >= 0.5 {
			v = -1
		}
	case ShapeSaw:
		v = 1 - 2*l.phase
	default:
		v = math.Sin(twoPi * l.phase)
	}
	l.phase += l.rateHz / sampleRate
	l.phase -= math.Floor(l.phase)
	return v * l.depth
}

func (l *LFO) Reset() { l.phase = 0 }
