package dsl

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cbegin/chordcraft-go/internal/music"
	"github.com/cbegin/chordcraft-go/internal/note"
)

// Generator writes canonical DSL text. Output depends only on the note
// events and the header, never on ids or input order.
type Generator struct{ cfg Config }

func NewGenerator(cfg Config) *Generator { return &Generator{cfg: cfg.Normalize()} }

func Generate(notes []note.Note, h Header) string {
	return NewGenerator(DefaultConfig()).Generate(notes, h)
}

// Generate emits the header, then one section per track in order of each
// track's earliest note. Notes sharing start and duration become a chord:
// declaration.
func (g *Generator) Generate(notes []note.Note, h Header) string {
	h = g.header(h)
	var sb strings.Builder
	sb.WriteString("tempo: " + formatNumber(h.Tempo) + "\n")
	sb.WriteString("key: " + word(h.Key) + "\n")
	sb.WriteString("time_signature: " + h.TimeSignature + "\n")

	byTrack := map[string][]note.Note{}
	var order []string
	for _, n := range note.Sorted(notes) {
		id := n.TrackID()
		if id == "" {
			id = g.cfg.DefaultTrack
		}
		if _, ok := byTrack[id]; !ok {
			order = append(order, id)
		}
		byTrack[id] = append(byTrack[id], n)
	}
	for _, id := range order {
		sb.WriteString("\nsection " + word(id) + " {\n")
		writeEvents(&sb, byTrack[id])
		sb.WriteString("}\n")
	}
	return sb.String()
}

func (g *Generator) header(h Header) Header {
	if !(h.Tempo > 0) {
		h.Tempo = g.cfg.DefaultTempo
	}
	h.Tempo = music.ClampTempo(h.Tempo)
	if h.Key == "" {
		h.Key = g.cfg.DefaultKey
	}
	if m, err := music.ParseMeter(h.TimeSignature); err == nil {
		h.TimeSignature = m.String()
	} else {
		h.TimeSignature = g.cfg.DefaultTimeSignature
	}
	return h
}

func writeEvents(sb *strings.Builder, notes []note.Note) {
	ordered := slices.Clone(notes)
	slices.SortStableFunc(ordered, func(a, b note.Note) int {
		return cmp.Or(
			cmp.Compare(a.Start(), b.Start()),
			cmp.Compare(a.Duration(), b.Duration()),
			cmp.Compare(a.Pitch(), b.Pitch()),
			cmp.Compare(a.Velocity(), b.Velocity()),
		)
	})
	for i := 0; i < len(ordered); {
		j := i + 1
		for j < len(ordered) && ordered[j].Start() == ordered[i].Start() && ordered[j].Duration() == ordered[i].Duration() {
			j++
		}
		group := ordered[i:j]
		if len(group) == 1 {
			n := group[0]
			sb.WriteString("  note: { pitch: " + n.PitchName() +
				", start: " + formatNumber(n.Start()) +
				", duration: " + formatNumber(n.Duration()) +
				", velocity: " + formatNumber(n.Velocity()) + " }\n")
		} else {
			writeChord(sb, group)
		}
		i = j
	}
}

func writeChord(sb *strings.Builder, group []note.Note) {
	names := make([]string, len(group))
	vels := make([]string, len(group))
	same := true
	for k, n := range group {
		names[k] = n.PitchName()
		vels[k] = formatNumber(n.Velocity())
		if n.Velocity() != group[0].Velocity() {
			same = false
		}
	}
	velocity := vels[0]
	if !same {
		velocity = "[" + strings.Join(vels, ", ") + "]"
	}
	sb.WriteString("  chord: { notes: [" + strings.Join(names, ", ") +
		"], start: " + formatNumber(group[0].Start()) +
		", duration: " + formatNumber(group[0].Duration()) +
		", velocity: " + velocity + " }\n")
}

// formatNumber is the shortest text that parses back to exactly v.
func formatNumber(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// word writes s bare when it lexes as a single word, quoted otherwise.
func word(s string) string {
	if s == "" || s[0] == '#' || strings.Contains(s, "//") {
		return strconv.Quote(s)
	}
	for _, r := range s {
		if !isWordRune(r) || r == utf8.RuneError {
			return strconv.Quote(s)
		}
	}
	return s
}
