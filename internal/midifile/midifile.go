// Package midifile converts timelines to and from Standard MIDI Files.
package midifile

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/chordcraft-go/internal/dsl"
	"github.com/cbegin/chordcraft-go/internal/music"
	"github.com/cbegin/chordcraft-go/internal/note"
	"github.com/cbegin/chordcraft-go/internal/playback"
	"github.com/cbegin/chordcraft-go/internal/timeline"
)

// Resolution is the number of ticks per quarter note in exported files.
const Resolution = 960

const drumChannel = 9

var ErrNoNotes = errors.New("midi file contains no notes")

type mark struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// Encode builds a type-1 file: a conductor track with tempo and meter,
// then one track per timeline track that has notes. Mute and solo are
// ignored so the export always carries every note.
func Encode(snap timeline.Snapshot) (*smf.SMF, error) {
	tempo := music.ClampTempo(snap.Tempo)
	meter := snap.Header.Meter()
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(Resolution)

	var conductor smf.Track
	conductor.Add(0, smf.MetaMeter(uint8(meter.Beats), uint8(meter.Unit)))
	conductor.Add(0, smf.MetaTempo(tempo))
	conductor.Close(0)
	if err := sm.Add(conductor); err != nil {
		return nil, fmt.Errorf("midifile: add conductor track: %w", err)
	}

	byTrack := map[string][]playback.Event{}
	for _, e := range playback.Schedule(snap.Notes, tempo) {
		byTrack[e.TrackID] = append(byTrack[e.TrackID], e)
	}
	ch := uint8(0)
	for _, t := range orderTracks(snap, byTrack) {
		events := byTrack[t.ID]
		if len(events) == 0 {
			continue
		}
		channel := ch
		if t.Kind == note.KindDrum {
			channel = drumChannel
		} else {
			ch = nextChannel(ch)
		}
		track, err := encodeTrack(t, channel, events, tempo)
		if err != nil {
			return nil, err
		}
		if err := sm.Add(track); err != nil {
			return nil, fmt.Errorf("midifile: add track %q: %w", t.ID, err)
		}
	}
	return sm, nil
}

// Write encodes snap and writes it to w.
func Write(w io.Writer, snap timeline.Snapshot) error {
	sm, err := Encode(snap)
	if err != nil {
		return err
	}
	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("midifile: write: %w", err)
	}
	return nil
}

// orderTracks lists the snapshot's tracks followed by any track id that
// only appears on notes.
func orderTracks(snap timeline.Snapshot, byTrack map[string][]playback.Event) []note.Track {
	out := slices.Clone(snap.Tracks)
	seen := map[string]bool{}
	for _, t := range out {
		seen[t.ID] = true
	}
	var extra []string
	for id := range byTrack {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	for _, id := range extra {
		out = append(out, note.Track{ID: id})
	}
	return out
}

func nextChannel(ch uint8) uint8 {
	ch = (ch + 1) % 16
	if ch == drumChannel {
		ch++
	}
	return ch
}

func encodeTrack(t note.Track, channel uint8, events []playback.Event, tempo float64) (smf.Track, error) {
	var marks []mark
	for _, e := range events {
		if e.Pitch < 0 || e.Pitch > 127 {
			return nil, fmt.Errorf("midifile: pitch %d out of range", e.Pitch)
		}
		key := uint8(e.Pitch)
		on := toTick(e.Offset, tempo)
		off := max(toTick(e.End(), tempo), on+1)
		marks = append(marks,
			mark{tick: on, msg: midi.NoteOn(channel, key, toVelocity(e.Velocity))},
			mark{tick: off, off: true, msg: midi.NoteOff(channel, key)},
		)
	}
	// releases sort ahead of strikes on the same tick so repeated keys
	// retrigger cleanly
	slices.SortStableFunc(marks, func(a, b mark) int {
		if c := cmp.Compare(a.tick, b.tick); c != 0 {
			return c
		}
		switch {
		case a.off && !b.off:
			return -1
		case !a.off && b.off:
			return 1
		}
		return 0
	})

	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(t.ID))
	last := uint32(0)
	for _, m := range marks {
		track.Add(m.tick-last, m.msg)
		last = m.tick
	}
	track.Close(0)
	return track, nil
}

func toTick(sec, tempo float64) uint32 {
	return uint32(math.Round(sec * tempo / 60 * Resolution))
}

func toVelocity(v float64) uint8 {
	return uint8(min(127, max(1, math.Round(v*127))))
}

// File is the content recovered from a MIDI file.
type File struct {
	Tempo  float64
	Meter  music.Meter
	Tracks []note.Track
	Notes  []note.Note
}

// Header is the DSL header matching the file.
func (f File) Header() dsl.Header {
	return dsl.Header{Tempo: f.Tempo, TimeSignature: f.Meter.String()}
}

type sounding struct {
	pitch      uint8
	start, end int64
	vel        uint8
}

// Read decodes a MIDI file. Each source track with notes becomes one
// timeline track named after the track's sequence name; notes still held at
// the end of a track are closed there.
func Read(r io.Reader) (f File, err error) {
	// smf can panic on malformed input
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("midifile: malformed file: %v", p)
		}
	}()
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return File{}, fmt.Errorf("midifile: read: %w", err)
	}
	f.Tempo = music.DefaultTempo
	if tc := sm.TempoChanges(); len(tc) > 0 {
		f.Tempo = music.ClampTempo(tc[0].BPM)
	}
	f.Meter = music.CommonTime

	used := map[string]bool{}
	for i, events := range sm.Tracks {
		var (
			abs                          int64
			channel, key, vel, num, deno uint8
			name                         string
			drum                         bool
			done                         []sounding
		)
		held := map[[2]uint8][]sounding{}
		for _, ev := range events {
			abs += int64(ev.Delta)
			msg := midi.Message(ev.Message)
			switch {
			case ev.Message.GetMetaTrackName(&name):
			case ev.Message.GetMetaMeter(&num, &deno):
				if m, err := music.ParseMeter(fmt.Sprintf("%d/%d", num, deno)); err == nil {
					f.Meter = m
				}
			case msg.GetNoteStart(&channel, &key, &vel):
				k := [2]uint8{channel, key}
				held[k] = append(held[k], sounding{pitch: key, start: abs, vel: vel})
				drum = drum || channel == drumChannel
			case msg.GetNoteEnd(&channel, &key):
				k := [2]uint8{channel, key}
				if hs := held[k]; len(hs) > 0 {
					hs[0].end = abs
					done = append(done, hs[0])
					held[k] = hs[1:]
				}
			}
		}
		for _, hs := range held {
			for _, h := range hs {
				h.end = abs
				done = append(done, h)
			}
		}
		if len(done) == 0 {
			continue
		}
		t := note.Track{ID: uniqueID(name, i+1, used), Name: name, Volume: note.DefaultVolume}
		if drum {
			t.Kind = note.KindDrum
		}
		f.Tracks = append(f.Tracks, t.Normalize())
		for _, s := range done {
			start := float64(sm.TimeAt(s.start)) / 1e6
			end := float64(sm.TimeAt(s.end)) / 1e6
			// zero-length notes cannot be represented
			if n, err := note.New(int(s.pitch), start, end-start, float64(s.vel)/127, t.ID); err == nil {
				f.Notes = append(f.Notes, n)
			}
		}
	}
	if len(f.Notes) == 0 {
		return f, ErrNoNotes
	}
	note.Sort(f.Notes)
	return f, nil
}

func uniqueID(name string, index int, used map[string]bool) string {
	id := strings.TrimSpace(name)
	if id == "" || used[id] {
		id = "track-" + strconv.Itoa(index)
	}
	for used[id] {
		id += "_"
	}
	used[id] = true
	return id
}
