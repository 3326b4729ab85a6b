package synth

import (
	"fmt"
	"math"
	"strings"
)

// Effect processes one stereo frame.
type Effect interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain runs effects in order.
type Chain struct {
	effects []Effect
}

func NewChain(effects ...Effect) *Chain { return &Chain{effects: effects} }

func (c *Chain) Len() int { return len(c.effects) }

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

// IsEffect reports whether ParseEffects accepts name.
func IsEffect(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reverb", "delay", "echo", "chorus", "compressor", "distortion":
		return true
	}
	return false
}

// ParseEffects builds a master chain from names as they appear in a section's
// effects list, e.g. "reverb" or "delay". Unknown names are an error.
// Effects run in the order given.
func ParseEffects(sampleRate int, names []string) (*Chain, error) {
	c := NewChain()
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "reverb":
			c.effects = append(c.effects, NewReverb(sampleRate, 0.5, 0.7, 0.25))
		case "delay", "echo":
			c.effects = append(c.effects, NewDelay(sampleRate, 250, 0.35, 0.3, 0.25))
		case "chorus":
			c.effects = append(c.effects, NewChorus(sampleRate, 15, 4, 0.8, 0.4))
		case "compressor":
			c.effects = append(c.effects, NewCompressor(sampleRate, -18, 4, 5, 120, 3))
		case "distortion":
			c.effects = append(c.effects, NewDistortion(sampleRate, 4, 0.5, 6000))
		default:
			return nil, fmt.Errorf("synth: unknown effect %q", name)
		}
	}
	return c, nil
}

// Reverb is a Schroeder reverb: four parallel combs into two allpasses.
type Reverb struct {
	combs [4]ring
	aps   [2]ring
	wet   float32
}

type ring struct {
	buf []float32
	pos int
	fb  float32
}

func (r *ring) comb(in float32) float32 {
	out := r.buf[r.pos]
	r.buf[r.pos] = in + out*r.fb
	r.advance()
	return out
}

func (r *ring) allpass(in float32) float32 {
	held := r.buf[r.pos]
	r.buf[r.pos] = in + held*r.fb
	r.advance()
	return held - in
}

func (r *ring) advance() {
	r.pos++
	if r.pos == len(r.buf) {
		r.pos = 0
	}
}

func (r *ring) clear() {
	clear(r.buf)
	r.pos = 0
}

func NewReverb(sampleRate int, roomSize, feedback, wet float32) *Reverb {
	base := max(int(float32(sampleRate)*roomSize*0.05), 10)
	fb := clamp32(feedback, 0, 0.95)
	rv := &Reverb{wet: clamp32(wet, 0, 1)}
	for i, ratio := range [4]int{1000, 1117, 1271, 1437} {
		rv.combs[i] = ring{buf: make([]float32, base*ratio/1000), fb: fb}
	}
	for i, ratio := range [2]int{347, 213} {
		rv.aps[i] = ring{buf: make([]float32, max(base*ratio/1000, 1)), fb: 0.5}
	}
	return rv
}

func (rv *Reverb) Process(l, r float32) (float32, float32) {
	mono := (l + r) * 0.5
	var out float32
	for i := range rv.combs {
		out += rv.combs[i].comb(mono)
	}
	out *= 0.25
	for i := range rv.aps {
		out = rv.aps[i].allpass(out)
	}
	return l*(1-rv.wet) + out*rv.wet, r*(1-rv.wet) + out*rv.wet
}

func (rv *Reverb) Reset() {
	for i := range rv.combs {
		rv.combs[i].clear()
	}
	for i := range rv.aps {
		rv.aps[i].clear()
	}
}

// Delay is a stereo feedback delay with cross-channel bleed.
type Delay struct {
	l, r     []float32
	pos      int
	feedback float32
	cross    float32
	wet      float32
}

func NewDelay(sampleRate int, ms float64, feedback, cross, wet float32) *Delay {
	n := max(int(ms*float64(sampleRate)/1000), 1)
	return &Delay{
		l:        make([]float32, n),
		r:        make([]float32, n),
		feedback: clamp32(feedback, 0, 0.95),
		cross:    clamp32(cross, 0, 1),
		wet:      clamp32(wet, 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	dl, dr := d.l[d.pos], d.r[d.pos]
	d.l[d.pos] = l + d.feedback*(dl*(1-d.cross)+dr*d.cross)
	d.r[d.pos] = r + d.feedback*(dr*(1-d.cross)+dl*d.cross)
	d.pos++
	if d.pos == len(d.l) {
		d.pos = 0
	}
	return l*(1-d.wet) + dl*d.wet, r*(1-d.wet) + dr*d.wet
}

func (d *Delay) Reset() {
	clear(d.l)
	clear(d.r)
	d.pos = 0
}

// Chorus mixes in a copy whose delay is swept by an LFO.
type Chorus struct {
	l, r  []float32
	pos   int
	base  float64
	sweep LFO
	rate  float64
	wet   float32
}

// NewChorus sweeps the delay by depthMs around baseMs at rateHz.
func NewChorus(sampleRate int, baseMs, depthMs, rateHz float64, wet float32) *Chorus {
	sr := float64(sampleRate)
	base := baseMs * sr / 1000
	depth := depthMs * sr / 1000
	n := int(base+depth) + 2
	return &Chorus{
		l:     make([]float32, n),
		r:     make([]float32, n),
		base:  base,
		sweep: NewLFO(ShapeSine, rateHz, min(depth, base)),
		rate:  sr,
		wet:   clamp32(wet, 0, 1),
	}
}

func (c *Chorus) Process(l, r float32) (float32, float32) {
	c.l[c.pos], c.r[c.pos] = l, r
	read := float64(c.pos) - (c.base + c.sweep.Sample(c.rate))
	n := len(c.l)
	for read < 0 {
		read += float64(n)
	}
	i := int(read) % n
	j := (i + 1) % n
	frac := float32(read - math.Floor(read))
	dl := c.l[i]*(1-frac) + c.l[j]*frac
	dr := c.r[i]*(1-frac) + c.r[j]*frac
	c.pos = (c.pos + 1) % n
	return l*(1-c.wet) + dl*c.wet, r*(1-c.wet) + dr*c.wet
}

func (c *Chorus) Reset() {
	clear(c.l)
	clear(c.r)
	c.pos = 0
	c.sweep.Reset()
}

// Compressor reduces the level above a threshold. Both channels share one
// envelope so the stereo image does not wander.
type Compressor struct {
	threshold float64
	ratio     float64
	attack    float64
	release   float64
	makeup    float32
	env       float64
}

func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float64) *Compressor {
	sr := float64(sampleRate)
	return &Compressor{
		threshold: math.Pow(10, thresholdDB/20),
		ratio:     max(ratio, 1),
		attack:    1 - math.Exp(-1/(attackMs*sr/1000)),
		release:   1 - math.Exp(-1/(releaseMs*sr/1000)),
		makeup:    float32(math.Pow(10, makeupDB/20)),
	}
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	level := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
	if level > c.env {
		c.env += c.attack * (level - c.env)
	} else {
		c.env += c.release * (level - c.env)
	}
	g := c.makeup
	if c.env > c.threshold {
		g *= float32(math.Pow(c.env/c.threshold, 1/c.ratio-1))
	}
	return l * g, r * g
}

func (c *Compressor) Reset() { c.env = 0 }

// Distortion soft-clips with tanh and smooths the result with a one-pole
// lowpass.
type Distortion struct {
	drive float64
	level float32
	alpha float32
	lp    [2]float32
}

func NewDistortion(sampleRate int, drive float64, level float32, cutoffHz float64) *Distortion {
	d := &Distortion{drive: max(drive, 1), level: level}
	if cutoffHz > 0 && cutoffHz < float64(sampleRate)/2 {
		rc := 1 / (twoPi * cutoffHz)
		dt := 1 / float64(sampleRate)
		d.alpha = float32(dt / (rc + dt))
	}
	return d
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	l = float32(math.Tanh(float64(l)*d.drive)) * d.level
	r = float32(math.Tanh(float64(r)*d.drive)) * d.level
	if d.alpha > 0 {
		d.lp[0] += d.alpha * (l - d.lp[0])
		d.lp[1] += d.alpha * (r - d.lp[1])
		l, r = d.lp[0], d.lp[1]
	}
	return l, r
}

func (d *Distortion) Reset() { d.lp = [2]float32{} }

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
