package synth

import (
	"cmp"
	"slices"
	"sync/atomic"

	"github.com/cbegin/chordcraft-go/internal/playback"
)

type SequenceOption func(*sequenceConfig)

type sequenceConfig struct {
	params Params
	fx     *Chain
	tail   float64
	tap    func([]float32)
}

func defaultSequenceConfig() sequenceConfig {
	return sequenceConfig{params: DefaultParams(), tail: 0.1}
}

func WithParams(p Params) SequenceOption {
	return func(cfg *sequenceConfig) {
		cfg.params = p
	}
}

func WithEffects(c *Chain) SequenceOption {
	return func(cfg *sequenceConfig) {
		cfg.fx = c
	}
}

// WithTail sets how much silence is rendered after the last voice dies
// before the sequence reports Finished.
func WithTail(seconds float64) SequenceOption {
	return func(cfg *sequenceConfig) {
		cfg.tail = max(0, seconds)
	}
}

// WithSampleTap installs a callback that sees every rendered buffer. It runs
// on the audio goroutine.
func WithSampleTap(tap func([]float32)) SequenceOption {
	return func(cfg *sequenceConfig) {
		cfg.tap = tap
	}
}

type noteOff struct {
	frame int
	voice int
}

// Sequence renders a fixed event list from frame zero. Its Process method
// satisfies the audio stream's sample source.
type Sequence struct {
	bank       *Bank
	fx         *Chain
	tap        func([]float32)
	sampleRate int
	events     []playback.Event
	next       int
	offs       []noteOff
	frame      int
	tail       int
	silent     int
	finished   atomic.Bool
}

func NewSequence(events []playback.Event, sampleRate int, opts ...SequenceOption) *Sequence {
	cfg := defaultSequenceConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	events = slices.Clone(events)
	slices.SortStableFunc(events, func(a, b playback.Event) int { return cmp.Compare(a.Offset, b.Offset) })
	return &Sequence{
		bank:       NewBank(sampleRate, cfg.params),
		fx:         cfg.fx,
		tap:        cfg.tap,
		sampleRate: sampleRate,
		events:     events,
		tail:       int(cfg.tail * float64(sampleRate)),
	}
}

func (s *Sequence) toFrame(sec float64) int { return int(sec * float64(s.sampleRate)) }

// Process fills dst with interleaved stereo frames.
func (s *Sequence) Process(dst []float32) {
	for i := 0; i+1 < len(dst); i += 2 {
		s.step()
		l, r := s.bank.RenderFrame()
		if s.fx != nil {
			l, r = s.fx.Process(l, r)
		}
		dst[i], dst[i+1] = l, r
		s.frame++
	}
	if s.tap != nil {
		s.tap(dst)
	}
}

func (s *Sequence) step() {
	for s.next < len(s.events) && s.toFrame(s.events[s.next].Offset) <= s.frame {
		e := s.events[s.next]
		s.next++
		id := s.bank.NoteOn(e.Pitch, e.Velocity, WaveFor(e.Kind))
		// every note sounds for at least one frame
		s.offs = append(s.offs, noteOff{frame: max(s.toFrame(e.End()), s.frame+1), voice: id})
	}
	kept := s.offs[:0]
	for _, off := range s.offs {
		if off.frame <= s.frame {
			s.bank.NoteOff(off.voice)
			continue
		}
		kept = append(kept, off)
	}
	s.offs = kept
	if s.next < len(s.events) || len(s.offs) > 0 || s.bank.ActiveVoiceCount() > 0 {
		s.silent = 0
		return
	}
	s.silent++
	if s.silent > s.tail {
		s.finished.Store(true)
	}
}

// Finished reports that every event has played and its release and tail
// have been rendered.
func (s *Sequence) Finished() bool { return s.finished.Load() }

// Frames is the number of frames rendered so far.
func (s *Sequence) Frames() int { return s.frame }

// Render renders events offline until the sequence finishes or limit seconds
// have been produced. A non-positive limit renders to the natural end.
func Render(events []playback.Event, sampleRate int, limit float64, opts ...SequenceOption) []float32 {
	seq := NewSequence(events, sampleRate, opts...)
	var frames int
	if limit > 0 {
		frames = int(limit * float64(sampleRate))
	} else {
		// upper bound; the loop stops once the sequence finishes
		frames = int((playback.Length(events)+10)*float64(sampleRate)) + seq.tail
	}
	const block = 1024
	out := make([]float32, 0, frames*2)
	buf := make([]float32, block*2)
	for len(out) < frames*2 {
		n := min(block, frames-len(out)/2)
		seq.Process(buf[:n*2])
		out = append(out, buf[:n*2]...)
		if limit <= 0 && seq.Finished() {
			break
		}
	}
	return out
}
