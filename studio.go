// Package chordcraft ties the timeline model, the piano-roll controller and
// the playback scheduler into one application root.
package chordcraft

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	intdsl "github.com/cbegin/chordcraft-go/internal/dsl"
	intedit "github.com/cbegin/chordcraft-go/internal/editor"
	intmidi "github.com/cbegin/chordcraft-go/internal/midifile"
	intplay "github.com/cbegin/chordcraft-go/internal/playback"
	intproj "github.com/cbegin/chordcraft-go/internal/project"
	intsynth "github.com/cbegin/chordcraft-go/internal/synth"
	inttl "github.com/cbegin/chordcraft-go/internal/timeline"
)

const DefaultSampleRate = 48000

// PlaybackEvent is delivered on the Watch channel.
type PlaybackEvent struct {
	Kind       int
	Generation uint64
	Event      intplay.Event // set for EventTrigger
	Message    string        // set for EventWarning
}

const (
	EventTrigger int = iota
	EventWarning
	EventPlaybackEnded
)

type StudioOption func(*studioConfig)

type studioConfig struct {
	engine     intplay.Engine
	clock      intplay.Clock
	logger     *slog.Logger
	editor     intedit.Config
	model      []inttl.Option
	sampleRate int
}

func defaultStudioConfig() studioConfig {
	return studioConfig{
		logger:     slog.Default(),
		editor:     intedit.DefaultConfig(),
		sampleRate: DefaultSampleRate,
	}
}

// WithEngine sets the sound engine. Without one, Play reports that audio
// is unavailable and playback stays stopped.
func WithEngine(e intplay.Engine) StudioOption {
	return func(cfg *studioConfig) {
		cfg.engine = e
	}
}

func WithClock(c intplay.Clock) StudioOption {
	return func(cfg *studioConfig) {
		cfg.clock = c
	}
}

func WithLogger(l *slog.Logger) StudioOption {
	return func(cfg *studioConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

func WithViewport(v intedit.Viewport) StudioOption {
	return func(cfg *studioConfig) {
		cfg.editor.Viewport = v
	}
}

func WithModelOptions(opts ...inttl.Option) StudioOption {
	return func(cfg *studioConfig) {
		cfg.model = append(cfg.model, opts...)
	}
}

// WithSampleRate sets the rate used by Render.
func WithSampleRate(hz int) StudioOption {
	return func(cfg *studioConfig) {
		if hz > 0 {
			cfg.sampleRate = hz
		}
	}
}

// Studio owns one composition. Like the model it wraps, it is meant to be
// driven from a single goroutine; the HTTP shell serializes requests.
type Studio struct {
	model      *inttl.Model
	editor     *intedit.Controller
	player     *intplay.Scheduler
	log        *slog.Logger
	sampleRate int
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

func NewStudio(opts ...StudioOption) *Studio {
	cfg := defaultStudioConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Studio{log: cfg.logger, sampleRate: cfg.sampleRate}
	s.model = inttl.New(append([]inttl.Option{inttl.WithLogger(cfg.logger)}, cfg.model...)...)
	cfg.editor.Logger = cfg.logger
	s.editor = intedit.New(s.model, cfg.editor)
	s.player = intplay.New(s.model, cfg.engine, intplay.Options{
		Clock:  cfg.clock,
		Logger: cfg.logger,
		OnTrigger: func(t intplay.Trigger) {
			s.sendEvent(PlaybackEvent{Kind: EventTrigger, Generation: t.Generation, Event: t.Event})
		},
		OnWarning: func(msg string) {
			s.sendEvent(PlaybackEvent{Kind: EventWarning, Message: msg})
		},
		OnFinish: func(gen uint64) {
			s.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Generation: gen})
		},
	})
	return s
}

func (s *Studio) Model() *inttl.Model              { return s.model }
func (s *Studio) Editor() *intedit.Controller      { return s.editor }
func (s *Studio) Scheduler() *intplay.Scheduler    { return s.player }
func (s *Studio) SampleRate() int                  { return s.sampleRate }
func (s *Studio) Diagnostics() []intdsl.Diagnostic { return s.model.Diagnostics() }

// SetText replaces the composition with text and returns its diagnostics.
func (s *Studio) SetText(text string) []intdsl.Diagnostic { return s.model.SetText(text) }

func (s *Studio) Play() error                    { return s.player.Play() }
func (s *Studio) Pause()                         { s.player.Pause() }
func (s *Studio) Seek(t float64) error           { return s.player.Seek(t) }
func (s *Studio) Wait(ctx context.Context) error { return s.player.Wait(ctx) }
func (s *Studio) PlaybackState() intplay.State   { return s.player.State() }
func (s *Studio) PlaybackPosition() float64      { return s.player.Position() }
func (s *Studio) Schedule() []intplay.Event      { return intplay.Arrange(s.model.Snapshot()) }

func (s *Studio) Stop() {
	s.player.Stop()
}

// Watch returns a channel that receives triggers, warnings and the end of
// playback. It is buffered; events are dropped rather than stalling the
// scheduler, so receive in a goroutine. Only the most recent Watch channel
// receives events.
func (s *Studio) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 64)
	s.eventChMu.Lock()
	s.eventCh = ch
	s.eventChMu.Unlock()
	return ch
}

func (s *Studio) sendEvent(ev PlaybackEvent) {
	s.eventChMu.Lock()
	ch := s.eventCh
	s.eventChMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// Effects lists the master effects the current text asks for that the
// synth can render.
func (s *Studio) Effects() []string {
	var out []string
	for _, name := range intdsl.Parse(s.model.Text()).Effects {
		if intsynth.IsEffect(name) {
			out = append(out, name)
			continue
		}
		s.log.Warn("studio: effect not available", "effect", name)
	}
	return out
}

// Render renders the audible arrangement offline. A non-positive limit
// renders until the last release has died away.
func (s *Studio) Render(limit float64) ([]float32, error) {
	return RenderSnapshot(s.model.Snapshot(), s.sampleRate, limit, s.Effects())
}

// Save writes the composition as a project bundle.
func (s *Studio) Save(path, title string) error {
	if err := intproj.Save(path, intproj.FromModel(s.model, title)); err != nil {
		return err
	}
	s.log.Info("studio: saved", "path", path)
	return nil
}

// Open replaces the composition with a saved bundle.
func (s *Studio) Open(path string) ([]intdsl.Diagnostic, error) {
	b, err := intproj.Load(path)
	if err != nil {
		return nil, err
	}
	s.player.Stop()
	s.editor.Cancel()
	diags := b.Apply(s.model)
	s.log.Info("studio: opened", "path", path, "notes", len(s.model.Notes()), "diagnostics", len(diags))
	return diags, nil
}

func (s *Studio) ExportMIDI(w io.Writer) error {
	return intmidi.Write(w, s.model.Snapshot())
}

// ImportMIDI replaces the composition with the notes of a MIDI file. Grid
// and snap settings are kept.
func (s *Studio) ImportMIDI(r io.Reader) ([]intdsl.Diagnostic, error) {
	f, err := intmidi.Read(r)
	if err != nil {
		return nil, fmt.Errorf("import midi: %w", err)
	}
	s.player.Stop()
	s.editor.Cancel()
	text := intdsl.Generate(f.Notes, f.Header())
	return s.model.Load(text, f.Tracks, s.model.GridResolution(), s.model.SnapEnabled()), nil
}
