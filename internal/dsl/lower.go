package dsl

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cbegin/chordcraft-go/internal/music"
	"github.com/cbegin/chordcraft-go/internal/note"
)

// Parser turns DSL text into notes. It is stateless between calls and safe
// for concurrent use.
type Parser struct{ cfg Config }

func NewParser(cfg Config) *Parser { return &Parser{cfg: cfg.Normalize()} }

// Parse never fails: problems are returned as diagnostics and malformed
// blocks contribute no notes.
func Parse(text string) Result { return NewParser(DefaultConfig()).Parse(text) }

func (p *Parser) Parse(text string) Result {
	f, diags := parseFile(text)
	lw := &lowerer{cfg: p.cfg, diags: diags}
	lw.header(f.Header)
	var notes []note.Note
	for _, pl := range f.Plays {
		n, err := lw.play(pl, p.cfg.DefaultTrack)
		if err != nil {
			lw.fail(err)
			continue
		}
		notes = append(notes, n...)
	}
	lw.total = len(notes)
	for _, b := range f.Blocks {
		ns := lw.block(b)
		lw.total += len(ns)
		notes = append(notes, ns...)
	}
	note.Sort(notes)
	return Result{Header: lw.hdr, Notes: notes, Diagnostics: lw.diags, Effects: lw.effects}
}

// lowerError is a semantic problem inside a block; the whole block is
// dropped.
type lowerError struct {
	pos Pos
	msg string
}

func (e *lowerError) Error() string { return e.msg }

func errAt(pos Pos, format string, args ...any) error {
	return &lowerError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

type lowerer struct {
	cfg    Config
	hdr    Header
	meter  music.Meter
	beat   float64
	cursor float64
	diags  []Diagnostic
	// total counts notes kept from earlier blocks.
	total int

	effects []string
}

// room reports whether n more notes fit under MaxNotes.
func (lw *lowerer) room(n int) bool { return lw.total+n <= lw.cfg.MaxNotes }

func (lw *lowerer) tooMany(pos Pos, kind string) error {
	return errAt(pos, "%s would produce more than %d notes", kind, lw.cfg.MaxNotes)
}

func (lw *lowerer) diag(pos Pos, sev Severity, format string, args ...any) {
	lw.diags = append(lw.diags, Diagnostic{Line: pos.Line, Col: pos.Col, Severity: sev, Message: fmt.Sprintf(format, args...)})
}

func (lw *lowerer) fail(err error) {
	var le *lowerError
	if errors.As(err, &le) {
		lw.diag(le.pos, SeverityError, "%s", le.msg)
		return
	}
	lw.diag(Pos{}, SeverityError, "%v", err)
}

func (lw *lowerer) header(fields []*Field) {
	lw.hdr = Header{
		Tempo:         lw.cfg.DefaultTempo,
		Key:           lw.cfg.DefaultKey,
		TimeSignature: lw.cfg.DefaultTimeSignature,
	}
	for _, f := range fields {
		s, ok := f.Value.(*Scalar)
		switch strings.ToLower(f.Key) {
		case "tempo":
			v, err := strconv.ParseFloat(scalarText(f.Value), 64)
			if !ok || err != nil || math.IsNaN(v) {
				lw.diag(f.Pos, SeverityError, "tempo must be a number")
				continue
			}
			if c := music.ClampTempo(v); c != v {
				lw.diag(s.Pos, SeverityWarning, "tempo %v clamped to %v", v, c)
				v = c
			}
			lw.hdr.Tempo = v
		case "key":
			if !ok || s.Text == "" {
				lw.diag(f.Pos, SeverityError, "key must be a name such as C_major")
				continue
			}
			lw.hdr.Key = s.Text
		case "time_signature":
			m, err := music.ParseMeter(scalarText(f.Value))
			if !ok || err != nil {
				lw.diag(f.Pos, SeverityError, "time_signature must look like 4/4")
				continue
			}
			lw.hdr.TimeSignature = m.String()
		case "effects":
			lw.collectEffects(f)
		case "title":
		default:
			lw.diag(f.Pos, SeverityWarning, "unknown header field %q", f.Key)
		}
	}
	lw.hdr.Tempo = music.ClampTempo(lw.hdr.Tempo)
	lw.meter = lw.hdr.Meter()
	lw.beat = music.BeatSeconds(lw.hdr.Tempo)
}

func (lw *lowerer) block(b *Block) []note.Note {
	if b.Broken {
		return nil
	}
	track := b.Name
	if track == "" {
		track = b.Kind
	}
	var (
		notes []note.Note
		err   error
	)
	switch strings.ToLower(b.Kind) {
	case "section":
		notes, err = lw.section(b, track)
	case "melody":
		notes, err = lw.melody(b, track)
	case "bass_line", "bass":
		notes, err = lw.bassLine(b, track)
	default:
		lw.diag(b.Pos, SeverityWarning, "unknown block %q skipped", b.Kind)
		return nil
	}
	if err == nil {
		var explicit []note.Note
		explicit, err = lw.explicit(b, track)
		notes = append(notes, explicit...)
	}
	if err != nil {
		lw.fail(err)
		return nil
	}
	if f := b.Field("effects"); f != nil {
		lw.collectEffects(f)
	}
	return notes
}

// collectEffects records effect names once each, in source order.
func (lw *lowerer) collectEffects(f *Field) {
	items := []Value{f.Value}
	if l, ok := f.Value.(*List); ok {
		items = l.Items
	}
	for _, v := range items {
		if v == nil {
			continue
		}
		name := strings.ToLower(scalarText(v))
		if name == "" {
			lw.diag(v.position(), SeverityWarning, "effects entries must be names")
			continue
		}
		if !slices.Contains(lw.effects, name) {
			lw.effects = append(lw.effects, name)
		}
	}
}

var (
	sectionFields = fieldSet("chord_progression", "rhythm", "duration", "octave", "velocity", "start", "effects", "note", "chord")
	melodyFields  = fieldSet("scale", "notes", "rhythm", "phrasing", "velocity", "start", "octave", "effects", "note", "chord")
	bassFields    = fieldSet("notes", "rhythm", "pattern", "duration", "velocity", "start", "octave", "effects", "note", "chord")
)

func fieldSet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func (lw *lowerer) warnUnknown(b *Block, known map[string]bool) {
	for _, f := range b.Fields {
		if !known[strings.ToLower(f.Key)] {
			lw.diag(f.Pos, SeverityWarning, "unknown field %q in %s", f.Key, b.Kind)
		}
	}
}

// section strikes each bar's chord on every rhythm step. Sections follow one
// another unless start: places them explicitly.
func (lw *lowerer) section(b *Block, track string) ([]note.Note, error) {
	lw.warnUnknown(b, sectionFields)
	start, err := lw.optSeconds(b.Field("start"), lw.cursor)
	if err != nil {
		return nil, err
	}
	velocity, err := lw.optVelocity(b.Field("velocity"), lw.cfg.DefaultVelocity)
	if err != nil {
		return nil, err
	}
	octave, err := optInt(b.Field("octave"), lw.cfg.ChordOctave)
	if err != nil {
		return nil, err
	}
	var chords [][]int
	if f := b.Field("chord_progression"); f != nil {
		items, err := listOf(f)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			s, ok := it.(*Scalar)
			if !ok {
				return nil, errAt(it.position(), "chord_progression entries must be chord symbols")
			}
			pitches, err := music.Chord(s.Text, octave)
			if err != nil {
				return nil, errAt(s.Pos, "%v", err)
			}
			chords = append(chords, pitches)
		}
	}
	bar := lw.meter.BarBeats()
	span := float64(len(chords)) * bar
	if f := b.Field("duration"); f != nil {
		if span, err = lw.span(f); err != nil {
			return nil, err
		}
	}
	steps := []float64{bar}
	if f := b.Field("rhythm"); f != nil {
		if steps, err = rhythmOf(f); err != nil {
			return nil, err
		}
	}
	lw.cursor = math.Max(lw.cursor, start+span*lw.beat)
	if len(chords) == 0 {
		return nil, nil
	}
	var notes []note.Note
	for barIdx := 0; float64(barIdx)*bar < span-epsilon; barIdx++ {
		barStart := float64(barIdx) * bar
		chord := chords[barIdx%len(chords)]
		at := 0.0
		for k := 0; at < bar-epsilon && barStart+at < span-epsilon; k++ {
			step := steps[k%len(steps)]
			length := math.Min(step, math.Min(bar-at, span-barStart-at))
			if !lw.room(len(notes) + len(chord)) {
				return nil, lw.tooMany(b.Pos, "section")
			}
			for _, pitch := range chord {
				n, err := note.New(pitch, start+(barStart+at)*lw.beat, length*lw.beat, velocity, track)
				if err != nil {
					return nil, errAt(b.Pos, "%v", err)
				}
				notes = append(notes, n)
			}
			at += step
		}
	}
	return notes, nil
}

const epsilon = 1e-9

// melody plays one entry per rhythm step; "r" and "rest" are silent.
func (lw *lowerer) melody(b *Block, track string) ([]note.Note, error) {
	lw.warnUnknown(b, melodyFields)
	pitches, pos, err := lw.pitchList(b, lw.cfg.ChordOctave)
	if err != nil {
		return nil, err
	}
	steps := []float64{1}
	if f := b.Field("rhythm"); f != nil {
		if steps, err = rhythmOf(f); err != nil {
			return nil, err
		}
	}
	gate := 1.0
	if f := b.Field("phrasing"); f != nil {
		switch strings.ToLower(scalarText(f.Value)) {
		case "staccato":
			gate = 0.5
		case "legato", "normal", "":
		default:
			lw.diag(f.Pos, SeverityWarning, "unknown phrasing %q", scalarText(f.Value))
		}
	}
	return lw.line(b, track, pitches, pos, steps, gate, len(pitches), lw.cfg.DefaultVelocity)
}

type bassPattern struct {
	gate     float64
	velocity float64
	rhythm   string
}

var bassPatterns = map[string]bassPattern{
	"driving":   {gate: 0.9, velocity: 0.9, rhythm: "eighth"},
	"walking":   {gate: 1, rhythm: "quarter"},
	"staccato":  {gate: 0.5, rhythm: "eighth"},
	"sustained": {gate: 1, rhythm: "half"},
}

// bassLine cycles its notes across duration bars, or plays them once.
func (lw *lowerer) bassLine(b *Block, track string) ([]note.Note, error) {
	lw.warnUnknown(b, bassFields)
	pat := bassPattern{gate: 1, velocity: lw.cfg.DefaultVelocity, rhythm: "eighth"}
	if f := b.Field("pattern"); f != nil {
		name := strings.ToLower(scalarText(f.Value))
		if bp, ok := bassPatterns[name]; ok {
			pat = bp
			if pat.velocity == 0 {
				pat.velocity = lw.cfg.DefaultVelocity
			}
		} else {
			lw.diag(f.Pos, SeverityWarning, "unknown bass pattern %q", name)
		}
	}
	pitches, pos, err := lw.pitchList(b, lw.cfg.ChordOctave-2)
	if err != nil {
		return nil, err
	}
	steps, _ := music.Rhythm(pat.rhythm)
	if f := b.Field("rhythm"); f != nil {
		if steps, err = rhythmOf(f); err != nil {
			return nil, err
		}
	}
	count := len(pitches)
	if f := b.Field("duration"); f != nil && len(pitches) > 0 {
		span, err := lw.span(f)
		if err != nil {
			return nil, err
		}
		count = 0
		for at := 0.0; at < span-epsilon; count++ {
			if !lw.room(count) {
				return nil, lw.tooMany(f.Pos, "bass_line")
			}
			at += steps[count%len(steps)]
		}
	}
	return lw.line(b, track, pitches, pos, steps, pat.gate, count, pat.velocity)
}

// line lays count entries of pitches (cycled) on the rhythm steps. A pitch of
// -1 is a rest.
func (lw *lowerer) line(b *Block, track string, pitches []int, pos []Pos, steps []float64, gate float64, count int, defVelocity float64) ([]note.Note, error) {
	start, err := lw.optSeconds(b.Field("start"), 0)
	if err != nil {
		return nil, err
	}
	velocity, err := lw.optVelocity(b.Field("velocity"), defVelocity)
	if err != nil {
		return nil, err
	}
	if !lw.room(count) {
		return nil, lw.tooMany(b.Pos, b.Kind)
	}
	var notes []note.Note
	at := start
	for i := 0; i < count; i++ {
		step := steps[i%len(steps)] * lw.beat
		if pitch := pitches[i%len(pitches)]; pitch >= 0 {
			n, err := note.New(pitch, at, step*gate, velocity, track)
			if err != nil {
				return nil, errAt(pos[i%len(pos)], "%v", err)
			}
			notes = append(notes, n)
		}
		at += step
	}
	return notes, nil
}

// pitchList reads notes: entries. Bare note names take defOctave.
func (lw *lowerer) pitchList(b *Block, defOctave int) ([]int, []Pos, error) {
	f := b.Field("notes")
	if f == nil {
		return nil, nil, nil
	}
	items, err := listOf(f)
	if err != nil {
		return nil, nil, err
	}
	pitches := make([]int, 0, len(items))
	pos := make([]Pos, 0, len(items))
	for _, it := range items {
		s, ok := it.(*Scalar)
		if !ok {
			return nil, nil, errAt(it.position(), "notes entries must be pitch names")
		}
		switch strings.ToLower(s.Text) {
		case "r", "rest":
			pitches = append(pitches, -1)
			pos = append(pos, s.Pos)
			continue
		}
		p, err := pitchOf(s, defOctave)
		if err != nil {
			return nil, nil, err
		}
		pitches = append(pitches, p)
		pos = append(pos, s.Pos)
	}
	return pitches, pos, nil
}

// explicit lowers note:, chord: and PLAY events. Their times are absolute.
func (lw *lowerer) explicit(b *Block, track string) ([]note.Note, error) {
	var notes []note.Note
	for _, f := range b.Fields {
		var (
			ns  []note.Note
			err error
		)
		switch strings.ToLower(f.Key) {
		case "note":
			ns, err = lw.noteObject(f, track)
		case "chord":
			ns, err = lw.chordObject(f, track)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		notes = append(notes, ns...)
	}
	for _, pl := range b.Plays {
		ns, err := lw.play(pl, track)
		if err != nil {
			return nil, err
		}
		notes = append(notes, ns...)
	}
	return notes, nil
}

func objectOf(f *Field) (*Object, error) {
	o, ok := f.Value.(*Object)
	if !ok {
		return nil, errAt(f.Pos, "%s must be an object like { pitch: C4, start: 0, duration: 1 }", f.Key)
	}
	return o, nil
}

func (lw *lowerer) timing(o *Object, owner *Field) (start, duration float64, err error) {
	sf, df := o.Field("start"), o.Field("duration")
	if sf == nil || df == nil {
		return 0, 0, errAt(owner.Pos, "%s needs start and duration", owner.Key)
	}
	if start, err = parseSeconds(sf.Value); err != nil {
		return 0, 0, err
	}
	if duration, err = parseSeconds(df.Value); err != nil {
		return 0, 0, err
	}
	return start, duration, nil
}

func (lw *lowerer) noteObject(f *Field, track string) ([]note.Note, error) {
	o, err := objectOf(f)
	if err != nil {
		return nil, err
	}
	pf := o.Field("pitch")
	if pf == nil {
		return nil, errAt(f.Pos, "note needs a pitch")
	}
	s, ok := pf.Value.(*Scalar)
	if !ok {
		return nil, errAt(pf.Pos, "pitch must be a name or number")
	}
	pitch, err := pitchOf(s, lw.cfg.ChordOctave)
	if err != nil {
		return nil, err
	}
	start, duration, err := lw.timing(o, f)
	if err != nil {
		return nil, err
	}
	velocity, err := lw.optVelocity(o.Field("velocity"), lw.cfg.DefaultVelocity)
	if err != nil {
		return nil, err
	}
	n, err := note.New(pitch, start, duration, velocity, track)
	if err != nil {
		return nil, errAt(f.Pos, "%v", err)
	}
	return []note.Note{n}, nil
}

func (lw *lowerer) chordObject(f *Field, track string) ([]note.Note, error) {
	o, err := objectOf(f)
	if err != nil {
		return nil, err
	}
	nf := o.Field("notes")
	if nf == nil {
		return nil, errAt(f.Pos, "chord needs notes")
	}
	items, err := listOf(nf)
	if err != nil {
		return nil, err
	}
	var pitches []int
	for _, it := range items {
		s, ok := it.(*Scalar)
		if !ok {
			return nil, errAt(it.position(), "chord notes must be pitch names")
		}
		// A chord symbol expands in place, so [C, F4] is also accepted.
		if p, err := pitchOf(s, -1); err == nil {
			pitches = append(pitches, p)
			continue
		}
		ps, err := music.Chord(s.Text, lw.cfg.ChordOctave)
		if err != nil {
			return nil, errAt(s.Pos, "%q is neither a pitch nor a chord", s.Text)
		}
		pitches = append(pitches, ps...)
	}
	start, duration, err := lw.timing(o, f)
	if err != nil {
		return nil, err
	}
	velocities := make([]float64, len(pitches))
	vf := o.Field("velocity")
	if l, ok := fieldValue(vf).(*List); ok {
		if len(l.Items) != len(pitches) {
			return nil, errAt(vf.Pos, "chord has %d notes but %d velocities", len(pitches), len(l.Items))
		}
		for i, it := range l.Items {
			if velocities[i], err = parseVelocity(it); err != nil {
				return nil, err
			}
		}
	} else {
		v, err := lw.optVelocity(vf, lw.cfg.DefaultVelocity)
		if err != nil {
			return nil, err
		}
		for i := range velocities {
			velocities[i] = v
		}
	}
	notes := make([]note.Note, 0, len(pitches))
	for i, pitch := range pitches {
		n, err := note.New(pitch, start, duration, velocities[i], track)
		if err != nil {
			return nil, errAt(f.Pos, "%v", err)
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// play lowers `PLAY C4 FOR 0.5s AT 1s`. A chord symbol in place of the pitch
// plays the whole chord.
func (lw *lowerer) play(pl *Play, track string) ([]note.Note, error) {
	var pitches []int
	if p, err := pitchOf(pl.Pitch, -1); err == nil {
		pitches = []int{p}
	} else if ps, cerr := music.Chord(pl.Pitch.Text, lw.cfg.ChordOctave); cerr == nil {
		pitches = ps
	} else {
		return nil, errAt(pl.Pitch.Pos, "%q is neither a pitch nor a chord", pl.Pitch.Text)
	}
	duration, err := parseSeconds(pl.Duration)
	if err != nil {
		return nil, err
	}
	start, err := parseSeconds(pl.At)
	if err != nil {
		return nil, err
	}
	v := lw.cfg.DefaultVelocity
	if pl.Velocity != nil {
		if v, err = parseVelocity(pl.Velocity); err != nil {
			return nil, err
		}
	}
	notes := make([]note.Note, 0, len(pitches))
	for _, pitch := range pitches {
		n, err := note.New(pitch, start, duration, v, track)
		if err != nil {
			return nil, errAt(pl.Pos, "%v", err)
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func (lw *lowerer) span(f *Field) (float64, error) {
	beats, err := music.ParseSpan(scalarText(f.Value), lw.meter)
	if err != nil {
		return 0, errAt(f.Pos, "%v", err)
	}
	return beats, nil
}

func (lw *lowerer) optSeconds(f *Field, def float64) (float64, error) {
	if f == nil {
		return def, nil
	}
	return parseSeconds(f.Value)
}

func (lw *lowerer) optVelocity(f *Field, def float64) (float64, error) {
	if f == nil {
		return def, nil
	}
	return parseVelocity(f.Value)
}

func fieldValue(f *Field) Value {
	if f == nil {
		return nil
	}
	return f.Value
}

func scalarText(v Value) string {
	if s, ok := v.(*Scalar); ok {
		return s.Text
	}
	return ""
}

func listOf(f *Field) ([]Value, error) {
	l, ok := f.Value.(*List)
	if !ok {
		return nil, errAt(f.Pos, "%s must be a list like [C, Am]", f.Key)
	}
	return l.Items, nil
}

// rhythmOf accepts a pattern name or a list of note values, in beats.
func rhythmOf(f *Field) ([]float64, error) {
	switch v := f.Value.(type) {
	case *Scalar:
		steps, ok := music.Rhythm(v.Text)
		if !ok {
			return nil, errAt(v.Pos, "unknown rhythm %q", v.Text)
		}
		return steps, nil
	case *List:
		if len(v.Items) == 0 {
			return nil, errAt(v.Pos, "rhythm list is empty")
		}
		steps := make([]float64, 0, len(v.Items))
		for _, it := range v.Items {
			beats, ok := music.NoteValue(scalarText(it))
			if !ok {
				return nil, errAt(it.position(), "unknown note value %q", scalarText(it))
			}
			steps = append(steps, beats)
		}
		return steps, nil
	}
	return nil, errAt(f.Pos, "rhythm must be a name or a list of note values")
}

// pitchOf reads "C4", a MIDI number, or a bare note name placed in defOctave.
// A negative defOctave disables bare names.
func pitchOf(s *Scalar, defOctave int) (int, error) {
	if n, err := strconv.Atoi(s.Text); err == nil {
		if !music.ValidPitch(n) {
			return 0, errAt(s.Pos, "pitch %d is outside %d..%d", n, music.MinPitch, music.MaxPitch)
		}
		return n, nil
	}
	p, err := music.ParsePitch(s.Text)
	if err == nil {
		return p, nil
	}
	if defOctave >= 0 {
		if class, cerr := music.ParsePitchClass(s.Text); cerr == nil {
			if p := (defOctave+1)*12 + class; music.ValidPitch(p) {
				return p, nil
			}
		}
	}
	return 0, errAt(s.Pos, "%v", err)
}

// parseSeconds reads "1.5" or "1.5s".
func parseSeconds(v Value) (float64, error) {
	s, ok := v.(*Scalar)
	if !ok {
		return 0, errAt(v.position(), "expected a time in seconds")
	}
	x, err := strconv.ParseFloat(strings.TrimSuffix(s.Text, "s"), 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, errAt(s.Pos, "bad time %q", s.Text)
	}
	return x, nil
}

// parseVelocity reads 0..1, or a MIDI velocity up to 127.
func parseVelocity(v Value) (float64, error) {
	s, ok := v.(*Scalar)
	if !ok {
		return 0, errAt(v.position(), "expected a velocity")
	}
	x, err := strconv.ParseFloat(s.Text, 64)
	if err != nil || !(x >= 0 && x <= 127) {
		return 0, errAt(s.Pos, "velocity %q must be within 0..1 or 0..127", s.Text)
	}
	if x > 1 {
		x /= 127
	}
	return x, nil
}

func optInt(f *Field, def int) (int, error) {
	if f == nil {
		return def, nil
	}
	n, err := strconv.Atoi(scalarText(f.Value))
	if err != nil {
		return 0, errAt(f.Pos, "%s must be an integer", f.Key)
	}
	return n, nil
}
