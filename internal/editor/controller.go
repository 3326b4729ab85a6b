// Package editor turns pointer gestures on the note surface into timeline
// mutations, applying grid snapping.
package editor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cbegin/chordcraft-go/internal/note"
	"github.com/cbegin/chordcraft-go/internal/timeline"
)

var ErrNoSelection = errors.New("no note selected")

type Gesture int

const (
	GestureNone Gesture = iota
	GestureAdd
	GestureMove
	GestureResize
)

func (g Gesture) String() string {
	switch g {
	case GestureAdd:
		return "add"
	case GestureMove:
		return "move"
	case GestureResize:
		return "resize"
	}
	return "none"
}

type Config struct {
	Viewport Viewport
	// DefaultDuration is the length of added notes; zero means one grid step.
	DefaultDuration float64
	MinDuration     float64
	Logger          *slog.Logger
}

func DefaultConfig() Config {
	return Config{Viewport: DefaultViewport(), MinDuration: 0.01}
}

type drag struct {
	kind   Gesture
	id     string
	x0, y0 float64
	start0 float64
	dur0   float64
	pitch0 int
}

// Controller edits a timeline.Model. Like the model it is driven by a single
// owner.
type Controller struct {
	m    *timeline.Model
	cfg  Config
	log  *slog.Logger
	drag *drag
}

func New(m *timeline.Model, cfg Config) *Controller {
	if cfg.Viewport.PixelsPerSecond <= 0 || cfg.Viewport.RowHeight <= 0 {
		cfg.Viewport = DefaultViewport()
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultConfig().MinDuration
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{m: m, cfg: cfg, log: log}
}

func (c *Controller) Viewport() Viewport { return c.cfg.Viewport }

func (c *Controller) SetViewport(v Viewport) {
	if v.PixelsPerSecond > 0 && v.RowHeight > 0 {
		c.cfg.Viewport = v
	}
}

// Active reports the gesture in progress.
func (c *Controller) Active() Gesture {
	if c.drag == nil {
		return GestureNone
	}
	return c.drag.kind
}

// Hit is a note under the pointer. Edge is set when the pointer is on the
// note's trailing resize grip.
type Hit struct {
	Note note.Note
	Edge bool
}

// HitTest finds the note under (x, y). Later notes win over earlier ones.
func (c *Controller) HitTest(x, y float64) (Hit, bool) {
	vp := c.cfg.Viewport
	pitch, _ := vp.PitchAt(y)
	notes := c.m.Notes()
	for i := len(notes) - 1; i >= 0; i-- {
		n := notes[i]
		if n.Pitch() != pitch {
			continue
		}
		left, right := vp.X(n.Start()), vp.X(n.End())
		if x < left || x > right {
			continue
		}
		grip := math.Min(vp.ResizeHandle, (right-left)/2)
		return Hit{Note: n, Edge: x >= right-grip}, true
	}
	return Hit{}, false
}

// PointerDown starts a gesture. On a note body it selects the note and
// begins a move; on the trailing edge a resize; on an empty cell inside the
// keyboard range it adds a note at the snapped time and selects it.
func (c *Controller) PointerDown(x, y float64) (Gesture, error) {
	c.drag = nil
	if hit, ok := c.HitTest(x, y); ok {
		n := hit.Note
		if err := c.m.Select(n.ID()); err != nil {
			return GestureNone, err
		}
		kind := GestureMove
		if hit.Edge {
			kind = GestureResize
		}
		c.drag = &drag{kind: kind, id: n.ID(), x0: x, y0: y, start0: n.Start(), dur0: n.Duration(), pitch0: n.Pitch()}
		return kind, nil
	}
	pitch, ok := c.cfg.Viewport.PitchAt(y)
	if !ok {
		return GestureNone, nil
	}
	duration := c.cfg.DefaultDuration
	if duration <= 0 {
		duration = c.m.GridStep()
	}
	n, err := c.m.AddNote(note.Patch{
		Pitch:    note.Int(pitch),
		Start:    note.Float(c.m.Snap(c.cfg.Viewport.TimeAt(x))),
		Duration: note.Float(duration),
	})
	if err != nil {
		return GestureNone, fmt.Errorf("add note: %w", err)
	}
	if err := c.m.Select(n.ID()); err != nil {
		return GestureNone, err
	}
	c.log.Debug("editor: note added", "id", n.ID(), "pitch", pitch, "start", n.Start())
	return GestureAdd, nil
}

// PointerMove updates the note being dragged. A move only touches start and
// pitch; a resize only touches duration.
func (c *Controller) PointerMove(x, y float64) error {
	d := c.drag
	if d == nil {
		return nil
	}
	vp := c.cfg.Viewport
	dt := (x - d.x0) / vp.PixelsPerSecond
	var p note.Patch
	switch d.kind {
	case GestureMove:
		start := c.m.Snap(math.Max(0, d.start0+dt))
		p.Start = note.Float(start)
		if pitch, ok := vp.PitchAt(vp.RowCenter(d.pitch0) + (y - d.y0)); ok {
			p.Pitch = note.Int(pitch)
		}
	case GestureResize:
		dur := c.m.Snap(math.Max(c.cfg.MinDuration, d.dur0+dt))
		if dur <= 0 {
			dur = c.m.GridStep()
		}
		p.Duration = note.Float(dur)
	default:
		return nil
	}
	_, err := c.m.UpdateNote(d.id, p)
	if errors.Is(err, timeline.ErrNoteNotFound) {
		// The note went away mid-drag.
		c.drag = nil
		return nil
	}
	return err
}

func (c *Controller) PointerUp(x, y float64) error {
	if c.drag == nil {
		return nil
	}
	err := c.PointerMove(x, y)
	c.drag = nil
	return err
}

// Cancel abandons the gesture, leaving the note where the last move put it.
func (c *Controller) Cancel() { c.drag = nil }

func (c *Controller) Select(id string) error { return c.m.Select(id) }

func (c *Controller) Deselect() { c.m.ClearSelection() }

// Inspector is the property view of the selected note.
type Inspector struct {
	ID        string
	PitchName string
	Pitch     int
	Start     float64
	Duration  float64
	Velocity  float64
	TrackID   string
}

func (c *Controller) Inspector() (Inspector, bool) {
	n, ok := c.m.Selected()
	if !ok {
		return Inspector{}, false
	}
	return Inspector{
		ID:        n.ID(),
		PitchName: n.PitchName(),
		Pitch:     n.Pitch(),
		Start:     n.Start(),
		Duration:  n.Duration(),
		Velocity:  n.Velocity(),
		TrackID:   n.TrackID(),
	}, true
}

// SetVelocity edits the selected note.
func (c *Controller) SetVelocity(v float64) (note.Note, error) {
	n, ok := c.m.Selected()
	if !ok {
		return note.Note{}, ErrNoSelection
	}
	return c.m.UpdateNote(n.ID(), note.Patch{Velocity: note.Float(v)})
}

func (c *Controller) DeleteSelected() bool {
	n, ok := c.m.Selected()
	if !ok {
		return false
	}
	if c.drag != nil && c.drag.id == n.ID() {
		c.drag = nil
	}
	return c.m.DeleteNote(n.ID())
}
