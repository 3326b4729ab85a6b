// Package audio plays rendered sample streams through the ebiten audio
// context and provides the real-time engine behind the playback scheduler.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource fills interleaved stereo float32 frames.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource ends the stream with io.EOF once Finished reports true.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// StreamReader adapts a SampleSource to the little-endian float32 byte
// stream ebiten players consume.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, s := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

// Output is a started stream. *Player implements it.
type Output interface {
	Play()
	Stop() error
}

type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	contextOnce       sync.Once
	sharedContext     *ebitaudio.Context
	contextSampleRate int
)

// ebiten allows one audio context per process.
func audioContext(sampleRate int) (ctx *ebitaudio.Context, err error) {
	contextOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("audio: create context: %v", r)
			}
		}()
		contextSampleRate = sampleRate
		sharedContext = ebitaudio.NewContext(sampleRate)
	})
	if err != nil {
		return nil, err
	}
	if sharedContext == nil {
		return nil, fmt.Errorf("audio: context unavailable")
	}
	if contextSampleRate != sampleRate {
		return nil, fmt.Errorf("audio: context already running at %d Hz (requested %d Hz)", contextSampleRate, sampleRate)
	}
	return sharedContext, nil
}

func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	ctx, err := audioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("audio: new player: %w", err)
	}
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Play() { p.player.Play() }

// Position is what the listener has actually heard.
func (p *Player) Position() time.Duration { return p.player.Position() }

func (p *Player) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
