package playback

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/chordcraft-go/internal/note"
	"github.com/cbegin/chordcraft-go/internal/timeline"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due timers in time order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	slices.SortStableFunc(due, func(a, b *fakeTimer) int { return a.at.Compare(b.at) })
	for _, t := range due {
		t.f()
	}
}

// FireAll runs every callback ever scheduled, stopped or not, the way a
// timer that lost a race with Stop would.
func (c *fakeClock) FireAll() {
	c.mu.Lock()
	all := slices.Clone(c.timers)
	c.mu.Unlock()
	for _, t := range all {
		t.f()
	}
}

type fakeEngine struct {
	tempo   float64
	played  [][]Event
	stops   int
	failing error
}

func (e *fakeEngine) SetTempo(bpm float64) error {
	e.tempo = bpm
	return nil
}

func (e *fakeEngine) Play(events []Event) error {
	if e.failing != nil {
		return e.failing
	}
	e.played = append(e.played, events)
	return nil
}

func (e *fakeEngine) Stop() error {
	e.stops++
	return nil
}

type recorder struct {
	mu       sync.Mutex
	triggers []Trigger
	warnings []string
}

func (r *recorder) options(c Clock) Options {
	return Options{
		Clock: c,
		OnTrigger: func(t Trigger) {
			r.mu.Lock()
			r.triggers = append(r.triggers, t)
			r.mu.Unlock()
		},
		OnWarning: func(msg string) {
			r.mu.Lock()
			r.warnings = append(r.warnings, msg)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) pitches() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, t := range r.triggers {
		out = append(out, t.Event.Pitch)
	}
	return out
}

func modelWith(t *testing.T, notes ...[3]float64) *timeline.Model {
	t.Helper()
	m := timeline.New()
	for _, n := range notes {
		_, err := m.AddNote(note.Patch{Pitch: note.Int(int(n[0])), Start: note.Float(n[1]), Duration: note.Float(n[2])})
		require.NoError(t, err)
	}
	return m
}

func TestScheduleOrdersEqualStartsByPitch(t *testing.T) {
	notes := []note.Note{
		note.MustNew(64, 0, 1, 0.8, "main").WithID("a"),
		note.MustNew(60, 0, 1, 0.8, "main").WithID("b"),
		note.MustNew(55, 0.5, 1, 0.8, "main").WithID("c"),
	}
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 50; i++ {
		rng.Shuffle(len(notes), func(i, j int) { notes[i], notes[j] = notes[j], notes[i] })
		events := Schedule(notes, 120)
		require.Len(t, events, 3)
		assert.Equal(t, []int{60, 64, 55}, []int{events[0].Pitch, events[1].Pitch, events[2].Pitch})
	}
	events := Schedule(notes, 120)
	assert.Equal(t, 1.0, events[2].Beat)
}

func TestArrangeAppliesMix(t *testing.T) {
	snap := timeline.Snapshot{
		Tempo: 120,
		Notes: []note.Note{
			note.MustNew(60, 0, 1, 1, "lead"),
			note.MustNew(36, 0, 1, 1, "kick"),
			note.MustNew(40, 0, 1, 1, "muted"),
		},
		Tracks: []note.Track{
			{ID: "lead", Volume: 0.5, Kind: note.KindSynthesizer},
			{ID: "kick", Volume: 1, Kind: note.KindDrum},
			{ID: "muted", Volume: 1, Muted: true},
		},
	}
	events := Arrange(snap)
	require.Len(t, events, 2)
	assert.Equal(t, 36, events[0].Pitch)
	assert.Equal(t, note.KindDrum, events[0].Kind)
	assert.Equal(t, 0.5, events[1].Velocity)

	snap.Tracks[1].Solo = true
	events = Arrange(snap)
	require.Len(t, events, 1)
	assert.Equal(t, "kick", events[0].TrackID)
}

func TestStateMachine(t *testing.T) {
	clk := newFakeClock()
	eng := &fakeEngine{}
	var rec recorder
	s := New(modelWith(t, [3]float64{60, 0, 1}), eng, rec.options(clk))

	s.Pause()
	assert.Equal(t, Stopped, s.State())
	s.Stop()
	s.Stop()
	assert.Equal(t, Stopped, s.State())

	require.NoError(t, s.Play())
	assert.Equal(t, Playing, s.State())
	gen := s.Generation()
	require.NoError(t, s.Play())
	assert.Equal(t, gen, s.Generation(), "play while playing is a no-op")
	assert.Equal(t, 120.0, eng.tempo)

	s.Pause()
	assert.Equal(t, Paused, s.State())
	require.NoError(t, s.Play())
	assert.Equal(t, Playing, s.State())
	s.Stop()
	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, 0.0, s.Position())
	assert.Equal(t, 2, eng.stops)
}

func TestTriggersFireInOrderThenStop(t *testing.T) {
	clk := newFakeClock()
	var rec recorder
	finished := 0
	opts := rec.options(clk)
	opts.OnFinish = func(uint64) { finished++ }
	s := New(modelWith(t, [3]float64{67, 0.5, 0.5}, [3]float64{64, 0, 1}, [3]float64{60, 0, 1}), &fakeEngine{}, opts)

	require.NoError(t, s.Play())
	clk.Advance(250 * time.Millisecond)
	assert.Equal(t, []int{60, 64}, rec.pitches())
	clk.Advance(time.Second)
	assert.Equal(t, []int{60, 64, 67}, rec.pitches())
	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, 1, finished)
	require.NoError(t, s.Wait(context.Background()))
}

func TestStaleTriggersAreDiscarded(t *testing.T) {
	clk := newFakeClock()
	var rec recorder
	s := New(modelWith(t, [3]float64{60, 0, 1}, [3]float64{62, 1, 1}), &fakeEngine{}, rec.options(clk))

	require.NoError(t, s.Play())
	s.Stop()
	clk.FireAll()
	assert.Empty(t, rec.pitches(), "nothing fires after stop")

	require.NoError(t, s.Play())
	current := s.Generation()
	clk.FireAll()
	require.Len(t, rec.triggers, 2)
	for _, tr := range rec.triggers {
		assert.Equal(t, current, tr.Generation)
	}
}

func TestEngineFailureWarnsOnceAndKeepsModel(t *testing.T) {
	m := modelWith(t, [3]float64{60, 0, 1})
	before := m.Snapshot()
	clk := newFakeClock()
	var rec recorder
	s := New(m, &fakeEngine{failing: errors.New("no audio device")}, rec.options(clk))

	err := s.Play()
	require.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Len(t, rec.warnings, 1)
	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, before, m.Snapshot())
	clk.FireAll()
	assert.Empty(t, rec.triggers)

	var rec2 recorder
	s = New(m, nil, rec2.options(clk))
	assert.ErrorIs(t, s.Play(), ErrEngineUnavailable)
	assert.Len(t, rec2.warnings, 1)
}

func TestPauseResumesFromPlayhead(t *testing.T) {
	clk := newFakeClock()
	eng := &fakeEngine{}
	var rec recorder
	s := New(modelWith(t, [3]float64{60, 0, 0.5}, [3]float64{62, 1, 0.5}, [3]float64{64, 2, 0.5}), eng, rec.options(clk))

	require.NoError(t, s.Play())
	clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, []int{60, 62}, rec.pitches())
	s.Pause()
	assert.InDelta(t, 1.5, s.Position(), 1e-9)
	clk.Advance(10 * time.Second)
	assert.Equal(t, []int{60, 62}, rec.pitches(), "paused playback stays silent")

	require.NoError(t, s.Play())
	require.Len(t, eng.played, 2)
	resumed := eng.played[1]
	require.Len(t, resumed, 1)
	assert.InDelta(t, 0.5, resumed[0].Offset, 1e-9)
	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, []int{60, 62, 64}, rec.pitches())
}

func TestSeekWhileStopped(t *testing.T) {
	clk := newFakeClock()
	eng := &fakeEngine{}
	s := New(modelWith(t, [3]float64{60, 0, 1}, [3]float64{62, 3, 1}), eng, Options{Clock: clk})
	require.NoError(t, s.Seek(2))
	assert.Equal(t, 2.0, s.Position())
	require.NoError(t, s.Play())
	require.Len(t, eng.played[0], 1)
	assert.Equal(t, 62, eng.played[0][0].Pitch)
	assert.Equal(t, 1.0, eng.played[0][0].Offset)
	s.Stop()
	assert.Equal(t, 0.0, s.Position())
}

func TestStopWhileStoppedKeepsSeek(t *testing.T) {
	eng := &fakeEngine{}
	s := New(modelWith(t, [3]float64{60, 0, 1}, [3]float64{62, 3, 1}), eng, Options{Clock: newFakeClock()})
	require.NoError(t, s.Seek(2))
	gen := s.Generation()
	s.Stop()
	assert.Equal(t, 2.0, s.Position())
	assert.Equal(t, gen, s.Generation())
	assert.Equal(t, Stopped, s.State())
}
