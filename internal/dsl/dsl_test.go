package dsl

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/chordcraft-go/internal/note"
)

const verse = "tempo: 120\nkey: C_major\ntime_signature: 4/4\n\nsection main {\n chord_progression: [C, Am, F, G]\n rhythm: quarter_notes\n duration: 8_bars\n}"

func errorsOf(r Result) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

func TestParseSectionScenario(t *testing.T) {
	r := Parse(verse)
	require.Empty(t, errorsOf(r))
	require.NotEmpty(t, r.Notes)
	assert.Equal(t, 120.0, r.Header.Tempo)
	assert.Equal(t, "C_major", r.Header.Key)
	assert.Equal(t, "4/4", r.Header.TimeSignature)

	// 8 bars, 4 strikes per bar, triads.
	assert.Len(t, r.Notes, 8*4*3)
	first := r.Notes[:3]
	assert.Equal(t, []int{60, 64, 67}, []int{first[0].Pitch(), first[1].Pitch(), first[2].Pitch()})
	for _, n := range r.Notes {
		assert.Equal(t, "main", n.TrackID())
		assert.Equal(t, 0.5, n.Duration())
		assert.Empty(t, n.ID())
	}
	var bar2 []int
	for _, n := range r.Notes {
		if n.Start() == 2.0 {
			bar2 = append(bar2, n.Pitch())
		}
	}
	assert.Equal(t, []int{69, 72, 76}, bar2, "second bar plays Am")

	text := Generate(r.Notes, r.Header)
	assert.Contains(t, text, "section main {")
	again := Parse(text)
	require.Empty(t, again.Diagnostics)
	assert.True(t, note.EqualEvents(r.Notes, again.Notes))
}

func randomNotes(seed int64, count int) []note.Note {
	rng := rand.New(rand.NewSource(seed))
	tracks := []string{"main", "Lead Synth", "bass", "drums#1", "melody"}
	var notes []note.Note
	for len(notes) < count {
		start := float64(rng.Intn(64)) * 0.125
		if rng.Intn(3) == 0 {
			start = rng.Float64() * 20
		}
		duration := 0.01 + rng.Float64()*2
		track := tracks[rng.Intn(len(tracks))]
		voices := 1 + rng.Intn(3)
		velocity := rng.Float64()
		for v := 0; v < voices; v++ {
			if rng.Intn(4) == 0 {
				velocity = float64(rng.Intn(128)) / 127
			}
			notes = append(notes, note.MustNew(rng.Intn(128), start, duration, velocity, track).WithID("id"))
		}
	}
	return notes
}

func TestRoundTripLaw(t *testing.T) {
	h := Header{Tempo: 97.5, Key: "F#_minor", TimeSignature: "6/8"}
	for seed := int64(1); seed <= 20; seed++ {
		notes := randomNotes(seed, 40)
		text := Generate(notes, h)
		r := Parse(text)
		require.Empty(t, r.Diagnostics, text)
		assert.True(t, note.EqualEvents(notes, r.Notes), "seed %d", seed)
		assert.Equal(t, h, r.Header)
		assert.Equal(t, text, Generate(r.Notes, r.Header), "seed %d: generation not idempotent", seed)
	}
}

func TestGenerateIgnoresInputOrder(t *testing.T) {
	notes := randomNotes(7, 30)
	reversed := make([]note.Note, len(notes))
	for i, n := range notes {
		reversed[len(notes)-1-i] = n.WithID("")
	}
	assert.Equal(t, Generate(notes, Header{}), Generate(reversed, Header{}))
}

func TestGenerateGroupsChords(t *testing.T) {
	notes := []note.Note{
		note.MustNew(67, 1, 0.5, 0.8, "main"),
		note.MustNew(64, 0, 1, 0.5, "main"),
		note.MustNew(60, 0, 1, 0.8, "main"),
	}
	want := "tempo: 120\nkey: C_major\ntime_signature: 4/4\n\n" +
		"section main {\n" +
		"  chord: { notes: [C4, E4], start: 0, duration: 1, velocity: [0.8, 0.5] }\n" +
		"  note: { pitch: G4, start: 1, duration: 0.5, velocity: 0.8 }\n" +
		"}\n"
	assert.Equal(t, want, Generate(notes, Header{Tempo: 120}))
}

func TestGenerateDefaultsHeader(t *testing.T) {
	assert.Equal(t, "tempo: 120\nkey: C_major\ntime_signature: 4/4\n", Generate(nil, Header{}))
	assert.Equal(t, "tempo: 200\nkey: \"D dorian\"\ntime_signature: 4/4\n",
		Generate(nil, Header{Tempo: 900, Key: "D dorian", TimeSignature: "4/5"}))
}

func TestPartialFailureKeepsGoodBlocks(t *testing.T) {
	src := strings.Join([]string{
		"tempo: 100",
		"section good {",
		"  chord_progression: [C]",
		"  duration: 1_bars",
		"}",
		"section bad {",
		"  chord_progression: [C, Hm]",
		"}",
		"melody broken {",
		"  notes: [C4, E4",
		"  rhythm: quarter",
		"}",
		"PLAY G4 FOR 1s AT 3s",
	}, "\n")
	r := Parse(src)

	var tracks []string
	for _, n := range r.Notes {
		tracks = append(tracks, n.TrackID())
	}
	assert.Equal(t, []string{"good", "good", "good", "main"}, tracks)
	assert.Equal(t, 2.4, r.Notes[0].Duration(), "one bar at 100 bpm")

	errs := errorsOf(r)
	require.Len(t, errs, 2)
	lines := []int{errs[0].Line, errs[1].Line}
	assert.ElementsMatch(t, []int{7, 11}, lines)
	assert.True(t, r.HasErrors())
}

func TestMissingValueRecovers(t *testing.T) {
	r := Parse("tempo: 90\nkey:\ntime_signature: 3/4\n")
	require.Len(t, r.Diagnostics, 1)
	assert.Contains(t, r.Diagnostics[0].Message, `missing value for "key"`)
	assert.Equal(t, "3/4", r.Header.TimeSignature)
	assert.Equal(t, "C_major", r.Header.Key)
	assert.Equal(t, 90.0, r.Header.Tempo)
}

func TestTempoClampedWithWarning(t *testing.T) {
	r := Parse("tempo: 500\n")
	assert.Equal(t, 200.0, r.Header.Tempo)
	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, SeverityWarning, r.Diagnostics[0].Severity)
	assert.False(t, r.HasErrors())
}

func TestLegacyPlayStatements(t *testing.T) {
	r := Parse("// Verse\nPLAY C4 FOR 0.5s AT 0.0s\nPLAY E4 FOR 0.5s AT 0.5s VELOCITY 100;\nPLAY Em FOR 1.0s AT 2.0s  // E minor\n")
	require.Empty(t, r.Diagnostics)
	require.Len(t, r.Notes, 5)
	assert.Equal(t, 60, r.Notes[0].Pitch())
	assert.InDelta(t, 100.0/127, r.Notes[1].Velocity(), 1e-12)
	assert.Equal(t, 0.8, r.Notes[0].Velocity())
	for _, n := range r.Notes[2:] {
		assert.Equal(t, 2.0, n.Start())
		assert.Equal(t, "main", n.TrackID())
	}
}

func TestMelodyBlock(t *testing.T) {
	r := Parse("tempo: 120\nmelody {\n  scale: C_major\n  notes: [C4, E4, r, G4]\n  rhythm: [quarter, eighth, eighth, half]\n  phrasing: staccato\n}\n")
	require.Empty(t, r.Diagnostics)
	require.Len(t, r.Notes, 3)
	got := [][3]float64{}
	for _, n := range r.Notes {
		assert.Equal(t, "melody", n.TrackID())
		got = append(got, [3]float64{float64(n.Pitch()), n.Start(), n.Duration()})
	}
	assert.Equal(t, [][3]float64{{60, 0, 0.25}, {64, 0.5, 0.125}, {67, 1, 0.5}}, got)
}

func TestBassLineBlock(t *testing.T) {
	r := Parse("tempo: 120\nbass_line groove {\n  notes: [C2, G2]\n  rhythm: eighth_notes\n  pattern: driving\n  duration: 1_bars\n}\n")
	require.Empty(t, r.Diagnostics)
	require.Len(t, r.Notes, 8)
	for i, n := range r.Notes {
		assert.Equal(t, "groove", n.TrackID())
		assert.InDelta(t, float64(i)*0.25, n.Start(), 1e-12)
		assert.InDelta(t, 0.225, n.Duration(), 1e-12)
		assert.Equal(t, 0.9, n.Velocity())
		assert.Equal(t, []int{36, 43}[i%2], n.Pitch())
	}
}

func TestSectionsFollowEachOther(t *testing.T) {
	r := Parse("section a { chord_progression: [C], duration: 1_bars }\nsection b { chord_progression: [G] }\n")
	require.Empty(t, r.Diagnostics)
	require.Len(t, r.Notes, 6)
	assert.Equal(t, 0.0, r.Notes[0].Start())
	assert.Equal(t, 2.0, r.Notes[3].Start())
	assert.Equal(t, "b", r.Notes[3].TrackID())
}

func TestChordVelocityMismatchDropsBlock(t *testing.T) {
	r := Parse("section x {\n  chord: { notes: [C4, E4], start: 0, duration: 1, velocity: [0.1] }\n}\nsection y {\n  note: { pitch: 60, start: 0, duration: 1 }\n}\n")
	require.Len(t, r.Notes, 1)
	assert.Equal(t, "y", r.Notes[0].TrackID())
	require.Len(t, errorsOf(r), 1)
	assert.Equal(t, 2, errorsOf(r)[0].Line)
}

func TestUnknownBlockIsWarning(t *testing.T) {
	r := Parse("drum_pattern { kick: [x] }\n")
	assert.Empty(t, r.Notes)
	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, SeverityWarning, r.Diagnostics[0].Severity)
}

func TestEffectsAreCollected(t *testing.T) {
	r := Parse("effects: [Reverb]\nsection a {\n chord_progression: [C]\n effects: [delay, reverb]\n}\nsection b {\n chord_progression: [G]\n effects: chorus\n}")
	assert.Empty(t, r.Diagnostics)
	assert.Equal(t, []string{"reverb", "delay", "chorus"}, r.Effects)

	r = Parse("section a {\n chord_progression: [C, X9]\n effects: [reverb]\n}")
	assert.Empty(t, r.Effects, "a dropped block contributes no effects")
}

func TestParseIsDeterministic(t *testing.T) {
	assert.Equal(t, Parse(verse), Parse(verse))
}

func TestLexer(t *testing.T) {
	toks, diags := lex("a: \"x\\\"y\" # note\n// gone\nF#4 C/G 4/4 \"open")
	require.Len(t, diags, 1)
	assert.Equal(t, 3, diags[0].Line)

	var kinds []tokenKind
	var texts []string
	for _, tk := range toks {
		kinds = append(kinds, tk.kind)
		texts = append(texts, tk.text)
	}
	assert.Equal(t, []tokenKind{tokWord, tokColon, tokString, tokWord, tokWord, tokWord, tokIllegal, tokEOF}, kinds)
	assert.Equal(t, `x"y`, texts[2])
	assert.Equal(t, []string{"F#4", "C/G", "4/4"}, texts[3:6])
	assert.True(t, toks[3].first)
	assert.False(t, toks[4].first)
}

func TestLexerSingleQuotes(t *testing.T) {
	toks, diags := lex("melody 'lead line' {\n scale: 'C major'\n}\n'open")
	require.Len(t, diags, 1)
	assert.Equal(t, 4, diags[0].Line)
	require.Equal(t, tokString, toks[1].kind)
	assert.Equal(t, "lead line", toks[1].text)
	assert.Equal(t, "C major", toks[5].text)

	r := Parse("melody 'lead line' {\n notes: [C4, 'E4']\n}")
	require.Empty(t, r.Diagnostics)
	require.Len(t, r.Notes, 2)
	assert.Equal(t, "lead line", r.Notes[0].TrackID())
	assert.Equal(t, 64, r.Notes[1].Pitch())
}

func TestHugeDurationsAreRejected(t *testing.T) {
	src := "section main {\n chord_progression: [C]\n rhythm: sixteenth\n duration: 200000_bars\n}\n" +
		"bass_line {\n notes: [r]\n duration: 100000000_bars\n}\n" +
		"section inf {\n chord_progression: [C]\n duration: inf_bars\n}\n" +
		"melody {\n notes: [C4, D4]\n}"
	r := Parse(src)
	require.Len(t, r.Notes, 2, "only the melody survives")
	assert.Equal(t, "melody", r.Notes[0].TrackID())
	errs := errorsOf(r)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Message, "more than")
	assert.Contains(t, errs[1].Message, "more than")
}

func TestMaxNotesIsPerDocument(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNotes = 10
	p := NewParser(cfg)

	r := p.Parse("section a {\n chord_progression: [C]\n rhythm: quarter_notes\n duration: 1_bars\n}")
	assert.Empty(t, r.Notes, "four triads would be 12")
	require.Len(t, errorsOf(r), 1)

	r = p.Parse("section a {\n chord_progression: [C]\n duration: 2_bars\n}\nsection b {\n chord_progression: [F]\n duration: 2_bars\n}")
	require.Len(t, r.Notes, 6, "the second section would make 12")
	assert.Equal(t, "a", r.Notes[0].TrackID())
	require.Len(t, errorsOf(r), 1)
	assert.Equal(t, 5, errorsOf(r)[0].Line)
}
