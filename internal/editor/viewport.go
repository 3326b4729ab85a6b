package editor

import "math"

// Viewport maps the piano-roll surface to time and pitch. Rows run from
// TopPitch downwards; x grows with time.
type Viewport struct {
	PixelsPerSecond float64
	RowHeight       float64
	TopPitch        int
	MinPitch        int
	MaxPitch        int
	// ResizeHandle is the width in pixels of a note's trailing-edge grip.
	ResizeHandle float64
}

// DefaultViewport shows the 88-key piano range.
func DefaultViewport() Viewport {
	return Viewport{
		PixelsPerSecond: 100,
		RowHeight:       12,
		TopPitch:        108,
		MinPitch:        21,
		MaxPitch:        108,
		ResizeHandle:    6,
	}
}

func (v Viewport) TimeAt(x float64) float64 {
	return math.Max(0, x/v.PixelsPerSecond)
}

func (v Viewport) X(t float64) float64 { return t * v.PixelsPerSecond }

// PitchAt returns the pitch of the row under y and whether it lies on the
// playable keyboard.
func (v Viewport) PitchAt(y float64) (int, bool) {
	p := v.TopPitch - int(math.Floor(y/v.RowHeight))
	return p, p >= v.MinPitch && p <= v.MaxPitch
}

// RowCenter is the y coordinate of the middle of pitch's row.
func (v Viewport) RowCenter(pitch int) float64 {
	return (float64(v.TopPitch-pitch) + 0.5) * v.RowHeight
}
