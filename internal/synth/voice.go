// Package synth renders playback events to stereo float32 samples with a
// small polyphonic oscillator bank and an optional master effect chain.
package synth

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/chordcraft-go/internal/music"
	"github.com/cbegin/chordcraft-go/internal/note"
)

const twoPi = math.Pi * 2

type Params struct {
	Voices      int
	MasterGain  float64
	AttackSec   float64
	DecaySec    float64
	SustainLvl  float64
	ReleaseSec  float64
	PulseDuty   float64
	VelocityAmp float64
	LPFCutoff   float64 // lowpass cutoff in Hz, 0 disables

	// Vibrato bends sine voices, which carry vocal tracks.
	VibratoDepth float64 // semitones
	VibratoRate  float64 // Hz
}

func DefaultParams() Params {
	return Params{
		Voices:      24,
		MasterGain:  0.22,
		AttackSec:   0.005,
		DecaySec:    0.12,
		SustainLvl:  0.7,
		ReleaseSec:  0.15,
		PulseDuty:   0.25,
		VelocityAmp: 0.85,
		LPFCutoff:   12000,

		VibratoDepth: 0.15,
		VibratoRate:  5.5,
	}
}

type Wave int

const (
	WavePulse Wave = iota
	WaveTriangle
	WaveSaw
	WaveSine
	WaveNoise
)

func (w Wave) String() string {
	switch w {
	case WaveTriangle:
		return "triangle"
	case WaveSaw:
		return "saw"
	case WaveSine:
		return "sine"
	case WaveNoise:
		return "noise"
	}
	return "pulse"
}

// WaveFor picks the oscillator for a track kind. Drum tracks play noise
// bursts; unknown kinds fall back to the synthesizer pulse.
func WaveFor(k note.Kind) Wave {
	switch k {
	case note.KindDrum:
		return WaveNoise
	case note.KindVocal:
		return WaveSine
	case note.KindMIDI:
		return WaveTriangle
	case note.KindAudio:
		return WaveSaw
	}
	return WavePulse
}

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type voice struct {
	active   bool
	id       int
	age      int
	wave     Wave
	freq     float64
	phase    float64
	velocity float64
	env      float64
	envState envState
	lfsr     uint16
}

// Bank is a fixed pool of voices. When every voice is busy the oldest
// releasing voice is stolen, then the oldest voice overall.
type Bank struct {
	sampleRate float64
	params     Params
	voices     []voice
	nextID     int
	masterGain uint64
	dcInL      float64
	dcOutL     float64
	dcInR      float64
	dcOutR     float64
	lpfL       float64
	lpfR       float64
	lpfAlpha   float64
	vibrato    LFO
}

func NewBank(sampleRate int, params Params) *Bank {
	if params.Voices <= 0 {
		params.Voices = DefaultParams().Voices
	}
	b := &Bank{
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]voice, params.Voices),
		masterGain: math.Float64bits(params.MasterGain),
		vibrato:    NewLFO(ShapeSine, params.VibratoRate, params.VibratoDepth),
	}
	for i := range b.voices {
		b.voices[i].lfsr = uint16(0xACE1 + i*97)
	}
	if params.LPFCutoff > 0 && params.LPFCutoff < float64(sampleRate)/2 {
		rc := 1.0 / (twoPi * params.LPFCutoff)
		dt := 1.0 / float64(sampleRate)
		b.lpfAlpha = dt / (rc + dt)
	}
	return b
}

// NoteOn starts a voice and returns its id for NoteOff. velocity is 0..1.
func (b *Bank) NoteOn(pitch int, velocity float64, wave Wave) int {
	slot := b.steal()
	id := b.nextID
	b.nextID++
	v := &b.voices[slot]
	v.active = true
	v.id = id
	v.age = 0
	v.wave = wave
	v.freq = music.Frequency(pitch)
	v.phase = 0
	v.velocity = clamp(velocity, 0, 1)
	v.env = 0
	v.envState = envAttack
	if v.lfsr == 0 {
		v.lfsr = 0xACE1
	}
	return id
}

func (b *Bank) NoteOff(id int) {
	for i := range b.voices {
		v := &b.voices[i]
		if v.active && v.id == id && v.envState != envRelease {
			v.envState = envRelease
		}
	}
}

// AllOff releases every sounding voice.
func (b *Bank) AllOff() {
	for i := range b.voices {
		if b.voices[i].active {
			b.voices[i].envState = envRelease
		}
	}
}

func (b *Bank) RenderFrame() (float32, float32) {
	gain := b.gain()
	bend := 1.0
	if b.vibrato.Active() {
		bend = math.Exp2(b.vibrato.Sample(b.sampleRate) / 12)
	}
	var sum float64
	for i := range b.voices {
		v := &b.voices[i]
		if !v.active {
			continue
		}
		v.age++
		env := b.advanceEnv(v)
		if !v.active {
			continue
		}
		sum += b.renderWave(v, bend) * env * (0.15 + v.velocity*b.params.VelocityAmp) * gain
	}
	l := b.dcBlockL(sum)
	r := b.dcBlockR(sum)
	if b.lpfAlpha > 0 {
		b.lpfL += b.lpfAlpha * (l - b.lpfL)
		b.lpfR += b.lpfAlpha * (r - b.lpfR)
		l, r = b.lpfL, b.lpfR
	}
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

func (b *Bank) dcBlockL(x float64) float64 {
	const r = 0.995
	y := x - b.dcInL + r*b.dcOutL
	b.dcInL, b.dcOutL = x, y
	return y
}

func (b *Bank) dcBlockR(x float64) float64 {
	const r = 0.995
	y := x - b.dcInR + r*b.dcOutR
	b.dcInR, b.dcOutR = x, y
	return y
}

// polyBLEP smooths a discontinuity at phase t for a phase step of dt.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func (b *Bank) renderWave(v *voice, bend float64) float64 {
	dt := v.freq / b.sampleRate
	if v.wave == WaveSine {
		dt *= bend
	}
	v.phase += dt
	if v.phase >= 1 {
		v.phase -= 1
	}
	switch v.wave {
	case WavePulse:
		duty := b.params.PulseDuty
		out := -1.0
		if v.phase < duty {
			out = 1
		}
		out += polyBLEP(v.phase, dt)
		out -= polyBLEP(math.Mod(v.phase-duty+1, 1), dt)
		return out
	case WaveTriangle:
		return 2*math.Abs(2*v.phase-1) - 1
	case WaveSaw:
		return 2*v.phase - 1 - polyBLEP(v.phase, dt)
	case WaveSine:
		return math.Sin(twoPi * v.phase)
	case WaveNoise:
		if v.phase < dt {
			bit := (v.lfsr ^ (v.lfsr >> 1)) & 1
			v.lfsr = (v.lfsr >> 1) | (bit << 15)
		}
		if v.lfsr&1 == 1 {
			return 1
		}
		return -1
	}
	return 0
}

func (b *Bank) steal() int {
	for i := range b.voices {
		if !b.voices[i].active {
			return i
		}
	}
	release, releaseAge := -1, -1
	oldest, oldestAge := 0, -1
	for i := range b.voices {
		v := &b.voices[i]
		if v.envState == envRelease && v.age > releaseAge {
			release, releaseAge = i, v.age
		}
		if v.age > oldestAge {
			oldest, oldestAge = i, v.age
		}
	}
	if release >= 0 {
		return release
	}
	return oldest
}

func (b *Bank) advanceEnv(v *voice) float64 {
	p := b.params
	switch v.envState {
	case envAttack:
		v.env += rate(1, p.AttackSec, b.sampleRate)
		if v.env >= 1 {
			v.env = 1
			v.envState = envDecay
		}
	case envDecay:
		v.env -= rate(1-p.SustainLvl, p.DecaySec, b.sampleRate)
		if v.env <= p.SustainLvl {
			v.env = p.SustainLvl
			v.envState = envSustain
		}
	case envRelease:
		// releases from wherever attack or decay left the level
		v.env -= rate(max(p.SustainLvl, 0.01), p.ReleaseSec, b.sampleRate)
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

// rate is the per-sample step covering span over sec; zero-length stages
// complete in one sample.
func rate(span, sec, sampleRate float64) float64 {
	step := span / (sec * sampleRate)
	if step <= 0 || math.IsInf(step, 0) || math.IsNaN(step) {
		return 1
	}
	return step
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (b *Bank) SetMasterGain(gain float64) {
	atomic.StoreUint64(&b.masterGain, math.Float64bits(max(0, gain)))
}

func (b *Bank) gain() float64 { return math.Float64frombits(atomic.LoadUint64(&b.masterGain)) }

func (b *Bank) ActiveVoiceCount() int {
	n := 0
	for i := range b.voices {
		if b.voices[i].active {
			n++
		}
	}
	return n
}
