package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cbegin/chordcraft-go/internal/timeline"
)

var ErrEngineUnavailable = errors.New("audio engine unavailable")

// Engine produces sound for a schedule. It is the external collaborator the
// scheduler hands events to.
type Engine interface {
	SetTempo(bpm float64) error
	Play(events []Event) error
	Stop() error
}

// SnapshotSource is satisfied by *timeline.Model.
type SnapshotSource interface {
	Snapshot() timeline.Snapshot
}

type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "stopped"
}

// Trigger is delivered when an event's time arrives. Generation identifies
// the Play call that scheduled it.
type Trigger struct {
	Generation uint64
	Event      Event
}

type Options struct {
	Clock Clock
	// OnTrigger runs on a clock goroutine with the scheduler locked; it must
	// not call back into the scheduler.
	OnTrigger func(Trigger)
	// OnWarning receives user-facing problems such as a missing engine.
	OnWarning func(string)
	// OnFinish runs when a schedule plays to its end, under the same rules
	// as OnTrigger.
	OnFinish func(generation uint64)
	Logger   *slog.Logger
}

type Scheduler struct {
	mu     sync.Mutex
	src    SnapshotSource
	engine Engine
	clock  Clock
	opts   Options
	log    *slog.Logger

	state    State
	gen      uint64
	playhead float64
	// while playing, the position is base plus the time since started.
	base    float64
	started int64
	timers  []Timer
	done    chan struct{}
}

// New builds a scheduler reading notes from src. A nil engine is allowed;
// Play then reports ErrEngineUnavailable.
func New(src SnapshotSource, engine Engine, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{src: src, engine: engine, clock: opts.Clock, opts: opts, log: log}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Position is the logical playhead in seconds.
func (s *Scheduler) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Scheduler) positionLocked() float64 {
	if s.state != Playing {
		return s.playhead
	}
	elapsed := float64(s.clock.Now().UnixNano()-s.started) / 1e9
	return s.base + max(0, elapsed)
}

// Play starts or resumes playback from the playhead. It is a no-op while
// already playing. When the engine is missing or refuses the schedule, one
// warning is reported and the state is left as it was.
func (s *Scheduler) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Playing {
		return nil
	}
	return s.startLocked(s.playhead)
}

func (s *Scheduler) startLocked(from float64) error {
	s.gen++
	gen := s.gen
	snap := s.src.Snapshot()
	var events []Event
	for _, e := range Arrange(snap) {
		if e.Offset < from {
			continue
		}
		e.Offset -= from
		e.Beat = e.Offset * snap.Tempo / 60
		events = append(events, e)
	}
	if err := s.startEngine(snap.Tempo, events); err != nil {
		s.warn(err.Error())
		return err
	}
	s.state = Playing
	s.base = from
	s.started = s.clock.Now().UnixNano()
	s.done = make(chan struct{})
	for _, e := range events {
		s.timers = append(s.timers, s.clock.AfterFunc(seconds(e.Offset), func() { s.fire(gen, e) }))
	}
	s.timers = append(s.timers, s.clock.AfterFunc(seconds(Length(events)), func() { s.finish(gen) }))
	s.log.Debug("playback: started", "generation", gen, "from", from, "events", len(events))
	return nil
}

func (s *Scheduler) startEngine(tempo float64, events []Event) error {
	if s.engine == nil {
		return ErrEngineUnavailable
	}
	if err := s.engine.SetTempo(tempo); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := s.engine.Play(events); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

func (s *Scheduler) warn(msg string) {
	s.log.Warn("playback: " + msg)
	if s.opts.OnWarning != nil {
		s.opts.OnWarning(msg)
	}
}

func (s *Scheduler) fire(gen uint64, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != Playing {
		s.log.Debug("playback: stale trigger dropped", "generation", gen, "current", s.gen)
		return
	}
	if s.opts.OnTrigger != nil {
		s.opts.OnTrigger(Trigger{Generation: gen, Event: e})
	}
}

func (s *Scheduler) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != Playing {
		return
	}
	s.haltLocked(Stopped, 0)
	if s.opts.OnFinish != nil {
		s.opts.OnFinish(gen)
	}
}

// haltLocked invalidates outstanding triggers and leaves the engine silent.
func (s *Scheduler) haltLocked(next State, playhead float64) {
	s.gen++
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.state = next
	s.playhead = playhead
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.engine != nil {
		if err := s.engine.Stop(); err != nil {
			s.log.Warn("playback: engine stop failed", "err", err)
		}
	}
}

// Pause keeps the playhead so that Play resumes from it.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Playing {
		return
	}
	s.haltLocked(Paused, s.positionLocked())
}

// Stop rewinds to zero. No trigger of the stopped schedule fires after Stop
// returns. Stopping while stopped does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	s.haltLocked(Stopped, 0)
}

// Seek moves the playhead. While playing, playback restarts from t.
func (s *Scheduler) Seek(t float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = max(0, t)
	if s.state != Playing {
		s.playhead = t
		return nil
	}
	s.haltLocked(Paused, t)
	return s.startLocked(t)
}

// Wait blocks until playback leaves the playing state or ctx ends.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
