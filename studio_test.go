package chordcraft

import (
	"bytes"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	intnote "github.com/cbegin/chordcraft-go/internal/note"
	intplay "github.com/cbegin/chordcraft-go/internal/playback"
)

type manualTimer struct {
	at      time.Time
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) intplay.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due, rest []*manualTimer
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		if t.at.After(c.now) {
			rest = append(rest, t)
		} else {
			due = append(due, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type recordingEngine struct {
	plays int
	fail  error
}

func (e *recordingEngine) SetTempo(float64) error { return nil }
func (e *recordingEngine) Stop() error            { return nil }

func (e *recordingEngine) Play([]intplay.Event) error {
	if e.fail != nil {
		return e.fail
	}
	e.plays++
	return nil
}

const verse = "tempo: 120\nkey: C_major\ntime_signature: 4/4\n\nsection main {\n chord_progression: [C, Am, F, G]\n rhythm: quarter_notes\n duration: 8_bars\n}"

func drain(ch <-chan PlaybackEvent) []PlaybackEvent {
	var out []PlaybackEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestStudioTriggersInScheduleOrder(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	eng := &recordingEngine{}
	s := NewStudio(WithEngine(eng), WithClock(clk))
	if diags := s.SetText(verse); len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	events := s.Watch()
	if err := s.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	clk.Advance(100 * time.Millisecond)
	got := drain(events)
	if len(got) != 3 {
		t.Fatalf("got %d events, want the first C triad", len(got))
	}
	for i, want := range []int{60, 64, 67} {
		if got[i].Kind != EventTrigger || got[i].Event.Pitch != want {
			t.Fatalf("event %d = %+v, want trigger for %d", i, got[i], want)
		}
	}

	s.Stop()
	clk.Advance(time.Hour)
	if rest := drain(events); len(rest) != 0 {
		t.Fatalf("events after stop: %v", rest)
	}
	if s.PlaybackState() != intplay.Stopped || s.PlaybackPosition() != 0 {
		t.Fatalf("state %v at %v after stop", s.PlaybackState(), s.PlaybackPosition())
	}
}

func TestStudioWithoutEngineWarnsOnce(t *testing.T) {
	s := NewStudio()
	s.SetText(verse)
	before := len(s.Model().Notes())
	events := s.Watch()
	if err := s.Play(); !errors.Is(err, intplay.ErrEngineUnavailable) {
		t.Fatalf("play error = %v", err)
	}
	got := drain(events)
	if len(got) != 1 || got[0].Kind != EventWarning {
		t.Fatalf("want exactly one warning, got %+v", got)
	}
	if s.PlaybackState() != intplay.Stopped {
		t.Fatalf("state = %v", s.PlaybackState())
	}
	if len(s.Model().Notes()) != before {
		t.Fatal("notes changed after a failed play")
	}
}

func TestStudioPlaysToTheEnd(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	s := NewStudio(WithEngine(&recordingEngine{}), WithClock(clk))
	if _, err := s.Model().AddNote(intnote.Patch{Pitch: intnote.Int(72), Duration: intnote.Float(0.25)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	events := s.Watch()
	if err := s.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	clk.Advance(time.Second)
	got := drain(events)
	if len(got) != 2 || got[1].Kind != EventPlaybackEnded {
		t.Fatalf("events = %+v", got)
	}
	if s.PlaybackState() != intplay.Stopped {
		t.Fatalf("state = %v", s.PlaybackState())
	}
}

func TestStudioSaveOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verse.chordcraft.yaml")
	a := NewStudio()
	a.SetText(verse)
	if _, err := a.Model().AddTrack("pad", intnote.TrackPatch{Volume: intnote.Float(0.3)}); err != nil {
		t.Fatalf("add track: %v", err)
	}
	if err := a.Save(path, "Verse"); err != nil {
		t.Fatalf("save: %v", err)
	}

	b := NewStudio()
	diags, err := b.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("diagnostics: %v", diags)
	}
	if !intnote.EqualEvents(a.Model().Notes(), b.Model().Notes()) {
		t.Fatal("notes differ after reopening")
	}
	if len(b.Model().Tracks()) != 2 {
		t.Fatalf("tracks = %v", b.Model().Tracks())
	}
	if _, err := b.Open(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing bundle")
	}
}

func TestStudioMIDIRoundTrip(t *testing.T) {
	a := NewStudio()
	a.SetText(verse)
	var buf bytes.Buffer
	if err := a.ExportMIDI(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	b := NewStudio()
	if _, err := b.ImportMIDI(&buf); err != nil {
		t.Fatalf("import: %v", err)
	}
	want, got := a.Model().Notes(), b.Model().Notes()
	if len(want) != len(got) {
		t.Fatalf("imported %d notes, want %d", len(got), len(want))
	}
	for i := range want {
		if want[i].Pitch() != got[i].Pitch() || want[i].TrackID() != got[i].TrackID() {
			t.Fatalf("note %d: got %v want %v", i, got[i], want[i])
		}
	}
	if _, err := b.ImportMIDI(bytes.NewReader([]byte("junk"))); err == nil {
		t.Fatal("expected an error for junk input")
	}
}

func TestStudioEffectsFromText(t *testing.T) {
	s := NewStudio(WithSampleRate(8000))
	s.SetText("section main {\n chord_progression: [C]\n effects: [reverb, flanger]\n}")
	fx := s.Effects()
	if len(fx) != 1 || fx[0] != "reverb" {
		t.Fatalf("effects = %v", fx)
	}
	out, err := s.Render(0.5)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != 2*4000 || peak(out) < 0.01 {
		t.Fatalf("render produced %d samples, peak %v", len(out), peak(out))
	}
}

func TestStudioEditorAddsNotes(t *testing.T) {
	s := NewStudio()
	vp := s.Editor().Viewport()
	if _, err := s.Editor().PointerDown(vp.X(2), vp.RowCenter(64)); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	if err := s.Editor().PointerUp(vp.X(2), vp.RowCenter(64)); err != nil {
		t.Fatalf("pointer up: %v", err)
	}
	notes := s.Model().Notes()
	if len(notes) != 1 || notes[0].Pitch() != 64 || notes[0].Start() != 2 {
		t.Fatalf("notes = %v", notes)
	}
	if len(s.Schedule()) != 1 {
		t.Fatalf("schedule = %v", s.Schedule())
	}
}
