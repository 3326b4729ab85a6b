// Package note defines the validated value types shared by the DSL, the
// timeline model, the editor and the scheduler.
package note

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/cbegin/chordcraft-go/internal/music"
)

var (
	ErrPitch    = errors.New("pitch out of range")
	ErrStart    = errors.New("start time must be a finite non-negative number")
	ErrDuration = errors.New("duration must be a finite positive number")
	ErrVelocity = errors.New("velocity must be within 0..1")
	ErrTrack    = errors.New("track id must not be empty")
)

// Note is a single sounding event. The zero value is not a valid note; use
// New, which enforces every invariant.
type Note struct {
	id       string
	pitch    int
	start    float64
	duration float64
	velocity float64
	trackID  string
}

// New validates the fields and returns a note without an id.
func New(pitch int, start, duration, velocity float64, trackID string) (Note, error) {
	if !music.ValidPitch(pitch) {
		return Note{}, fmt.Errorf("%w: %d", ErrPitch, pitch)
	}
	if !(start >= 0) || math.IsInf(start, 1) {
		return Note{}, fmt.Errorf("%w: %v", ErrStart, start)
	}
	if !(duration > 0) || math.IsInf(duration, 1) {
		return Note{}, fmt.Errorf("%w: %v", ErrDuration, duration)
	}
	if !(velocity >= 0 && velocity <= 1) {
		return Note{}, fmt.Errorf("%w: %v", ErrVelocity, velocity)
	}
	if trackID == "" {
		return Note{}, ErrTrack
	}
	return Note{
		pitch:    pitch,
		start:    start,
		duration: duration,
		velocity: velocity,
		trackID:  trackID,
	}, nil
}

// MustNew is New for literals in tests and tables; it panics on invalid input.
func MustNew(pitch int, start, duration, velocity float64, trackID string) Note {
	n, err := New(pitch, start, duration, velocity, trackID)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Note) ID() string        { return n.id }
func (n Note) Pitch() int        { return n.pitch }
func (n Note) Start() float64    { return n.start }
func (n Note) Duration() float64 { return n.duration }
func (n Note) Velocity() float64 { return n.velocity }
func (n Note) TrackID() string   { return n.trackID }
func (n Note) End() float64      { return n.start + n.duration }
func (n Note) PitchName() string { return music.PitchName(n.pitch) }
func (n Note) WithID(id string) Note {
	n.id = id
	return n
}

// Apply returns a copy of n with the non-nil fields of p replaced and all
// invariants re-checked. The id is preserved.
func (n Note) Apply(p Patch) (Note, error) {
	pitch, start, duration, velocity, track := n.pitch, n.start, n.duration, n.velocity, n.trackID
	if p.Pitch != nil {
		pitch = *p.Pitch
	}
	if p.Start != nil {
		start = *p.Start
	}
	if p.Duration != nil {
		duration = *p.Duration
	}
	if p.Velocity != nil {
		velocity = *p.Velocity
	}
	if p.TrackID != nil {
		track = *p.TrackID
	}
	out, err := New(pitch, start, duration, velocity, track)
	if err != nil {
		return n, err
	}
	return out.WithID(n.id), nil
}

// SameEvent compares every field except the id.
func (n Note) SameEvent(o Note) bool {
	return n.pitch == o.pitch &&
		n.start == o.start &&
		n.duration == o.duration &&
		n.velocity == o.velocity &&
		n.trackID == o.trackID
}

func (n Note) String() string {
	return fmt.Sprintf("%s@%g+%g v%g [%s]", n.PitchName(), n.start, n.duration, n.velocity, n.trackID)
}

// Patch is a partial note. Nil fields are left unchanged.
type Patch struct {
	Pitch    *int
	Start    *float64
	Duration *float64
	Velocity *float64
	TrackID  *string
}

func (p Patch) Empty() bool {
	return p.Pitch == nil && p.Start == nil && p.Duration == nil && p.Velocity == nil && p.TrackID == nil
}

func Int(v int) *int           { return &v }
func Float(v float64) *float64 { return &v }
func String(v string) *string  { return &v }
func Bool(v bool) *bool        { return &v }

// Compare orders notes by start time, then pitch, duration, velocity, track
// and id, which is total for any set of distinct notes.
func Compare(a, b Note) int {
	return cmp.Or(
		cmp.Compare(a.start, b.start),
		cmp.Compare(a.pitch, b.pitch),
		cmp.Compare(a.duration, b.duration),
		cmp.Compare(a.velocity, b.velocity),
		cmp.Compare(a.trackID, b.trackID),
		cmp.Compare(a.id, b.id),
	)
}

// Sort orders notes in place by Compare.
func Sort(notes []Note) {
	slices.SortStableFunc(notes, Compare)
}

// Sorted returns a sorted copy.
func Sorted(notes []Note) []Note {
	out := slices.Clone(notes)
	Sort(out)
	return out
}

// EqualEvents reports whether a and b hold the same events regardless of
// order and ids.
func EqualEvents(a, b []Note) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := Sorted(stripIDs(a)), Sorted(stripIDs(b))
	for i := range sa {
		if !sa[i].SameEvent(sb[i]) {
			return false
		}
	}
	return true
}

func stripIDs(notes []Note) []Note {
	out := make([]Note, len(notes))
	for i, n := range notes {
		out[i] = n.WithID("")
	}
	return out
}
