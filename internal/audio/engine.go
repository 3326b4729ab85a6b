package audio

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/cbegin/chordcraft-go/internal/playback"
	"github.com/cbegin/chordcraft-go/internal/synth"
)

const DefaultSampleRate = 48000

type EngineOption func(*engineConfig)

type engineConfig struct {
	sampleRate int
	seq        []synth.SequenceOption
	logger     *slog.Logger
	open       func(sampleRate int, src SampleSource) (Output, error)
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		sampleRate: DefaultSampleRate,
		logger:     slog.Default(),
		open: func(sampleRate int, src SampleSource) (Output, error) {
			return NewPlayer(sampleRate, src)
		},
	}
}

func WithSampleRate(hz int) EngineOption {
	return func(cfg *engineConfig) {
		if hz > 0 {
			cfg.sampleRate = hz
		}
	}
}

// WithSequenceOptions passes voice parameters, effects or a sample tap to
// every sequence the engine renders.
func WithSequenceOptions(opts ...synth.SequenceOption) EngineOption {
	return func(cfg *engineConfig) {
		cfg.seq = append(cfg.seq, opts...)
	}
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(cfg *engineConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// Engine renders schedules with the synth and streams them to the audio
// device. It satisfies playback.Engine.
type Engine struct {
	mu    sync.Mutex
	cfg   engineConfig
	tempo float64
	out   Output
	seq   *synth.Sequence
	fx    *synth.Chain
}

var _ playback.Engine = (*Engine)(nil)

func NewEngine(opts ...EngineOption) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{cfg: cfg}
}

// SetTempo records the tempo; event times already arrive in seconds.
func (e *Engine) SetTempo(bpm float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tempo = bpm
	return nil
}

func (e *Engine) Tempo() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tempo
}

// SetEffects sets the master effects applied from the next Play on.
func (e *Engine) SetEffects(names []string) error {
	fx, err := synth.ParseEffects(e.cfg.sampleRate, names)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fx = fx
	return nil
}

// Play replaces whatever is sounding with events, offset from now.
func (e *Engine) Play(events []playback.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stopLocked(); err != nil {
		e.cfg.logger.Warn("audio: stop previous stream", "err", err)
	}
	opts := e.cfg.seq
	if e.fx != nil && e.fx.Len() > 0 {
		// the previous stream is stopped, so the chain is free to reuse
		e.fx.Reset()
		opts = append(slices.Clone(opts), synth.WithEffects(e.fx))
	}
	seq := synth.NewSequence(events, e.cfg.sampleRate, opts...)
	out, err := e.cfg.open(e.cfg.sampleRate, seq)
	if err != nil {
		return fmt.Errorf("audio: open output: %w", err)
	}
	out.Play()
	e.out, e.seq = out, seq
	e.cfg.logger.Debug("audio: playing", "events", len(events), "sampleRate", e.cfg.sampleRate)
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	if e.out == nil {
		return nil
	}
	out := e.out
	e.out, e.seq = nil, nil
	return out.Stop()
}

// Finished reports whether the current stream has rendered its tail.
func (e *Engine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq == nil || e.seq.Finished()
}
