// Package playback turns timeline notes into an ordered trigger schedule and
// drives a play/pause/stop state machine over an external sound engine.
package playback

import (
	"cmp"
	"slices"

	"github.com/cbegin/chordcraft-go/internal/music"
	"github.com/cbegin/chordcraft-go/internal/note"
	"github.com/cbegin/chordcraft-go/internal/timeline"
)

// Event is one scheduled trigger. Offset and Duration are in seconds from
// the start of the schedule; Beat is Offset in beats at the schedule tempo.
type Event struct {
	Offset   float64   `json:"offset"`
	Beat     float64   `json:"beat"`
	Pitch    int       `json:"pitch"`
	Velocity float64   `json:"velocity"`
	Duration float64   `json:"duration"`
	TrackID  string    `json:"trackId"`
	NoteID   string    `json:"noteId,omitempty"`
	Kind     note.Kind `json:"kind"`
}

func (e Event) End() float64 { return e.Offset + e.Duration }

// Schedule lists notes in trigger order: by offset, then pitch, with
// duration, track and id as final tie-breakers so that the order never
// depends on input order.
func Schedule(notes []note.Note, tempo float64) []Event {
	bps := music.ClampTempo(tempo) / 60
	events := make([]Event, 0, len(notes))
	for _, n := range notes {
		events = append(events, Event{
			Offset:   n.Start(),
			Beat:     n.Start() * bps,
			Pitch:    n.Pitch(),
			Velocity: n.Velocity(),
			Duration: n.Duration(),
			TrackID:  n.TrackID(),
			NoteID:   n.ID(),
			Kind:     note.KindSynthesizer,
		})
	}
	sortEvents(events)
	return events
}

func sortEvents(events []Event) {
	slices.SortFunc(events, func(a, b Event) int {
		return cmp.Or(
			cmp.Compare(a.Offset, b.Offset),
			cmp.Compare(a.Pitch, b.Pitch),
			cmp.Compare(a.Duration, b.Duration),
			cmp.Compare(a.TrackID, b.TrackID),
			cmp.Compare(a.NoteID, b.NoteID),
			cmp.Compare(a.Velocity, b.Velocity),
		)
	})
}

// Arrange schedules what is audible in s: muted tracks are dropped, solo
// tracks silence the rest, and track volume scales velocity. Notes on tracks
// the snapshot does not list play at full volume.
func Arrange(s timeline.Snapshot) []Event {
	tracks := make(map[string]note.Track, len(s.Tracks))
	solo := false
	for _, t := range s.Tracks {
		tracks[t.ID] = t
		solo = solo || t.Solo
	}
	events := Schedule(s.Notes, s.Tempo)
	out := events[:0]
	for _, e := range events {
		t, known := tracks[e.TrackID]
		if known {
			if t.Muted || (solo && !t.Solo) {
				continue
			}
			e.Velocity *= t.Volume
			if t.Kind != "" {
				e.Kind = t.Kind
			}
		} else if solo {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Length is the time at which the last event ends.
func Length(events []Event) float64 {
	end := 0.0
	for _, e := range events {
		end = max(end, e.End())
	}
	return end
}
