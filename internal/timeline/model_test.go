package timeline

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/chordcraft-go/internal/dsl"
	"github.com/cbegin/chordcraft-go/internal/note"
)

func seqIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return "n" + strconv.Itoa(n)
	})
}

func TestAddThenUpdateDuration(t *testing.T) {
	m := New(seqIDs())
	n, err := m.AddNote(note.Patch{Pitch: note.Int(60), Start: note.Float(0), Duration: note.Float(1)})
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID())
	assert.Equal(t, 0.8, n.Velocity())
	assert.Equal(t, "main", n.TrackID())

	up, err := m.UpdateNote(n.ID(), note.Patch{Duration: note.Float(2)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, up.Start())
	assert.Equal(t, 2.0, up.Duration())
	assert.Equal(t, 60, up.Pitch())
}

func TestAddNoteDefaults(t *testing.T) {
	m := New(seqIDs())
	m.SetTempo(60)
	n, err := m.AddNote(note.Patch{})
	require.NoError(t, err)
	assert.Equal(t, 60, n.Pitch())
	assert.Equal(t, 1.0, n.Duration(), "one beat at 60 bpm")

	_, err = m.AddNote(note.Patch{Velocity: note.Float(2)})
	assert.ErrorIs(t, err, note.ErrVelocity)
	assert.Len(t, m.Notes(), 1)
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	m := New()
	_, err := m.UpdateNote("ghost", note.Patch{Start: note.Float(1)})
	assert.ErrorIs(t, err, ErrNoteNotFound)
	assert.False(t, m.DeleteNote("ghost"))
	_, err = m.DuplicateNote("ghost", 1)
	assert.ErrorIs(t, err, ErrNoteNotFound)
	assert.ErrorIs(t, m.Select("ghost"), ErrNoteNotFound)
	_, err = m.UpdateTrack("ghost", note.TrackPatch{})
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestInvalidUpdateLeavesNote(t *testing.T) {
	m := New(seqIDs())
	n, err := m.AddNote(note.Patch{})
	require.NoError(t, err)
	text := m.Text()
	_, err = m.UpdateNote(n.ID(), note.Patch{Duration: note.Float(0)})
	assert.ErrorIs(t, err, note.ErrDuration)
	got, ok := m.Note(n.ID())
	require.True(t, ok)
	assert.Equal(t, n, got)
	assert.Equal(t, text, m.Text())
}

func TestClamps(t *testing.T) {
	m := New()
	assert.Equal(t, 200.0, m.SetTempo(500))
	assert.Equal(t, 60.0, m.SetTempo(10))
	assert.Equal(t, 32, m.SetGridResolution(99))
	assert.Equal(t, 1, m.SetGridResolution(-3))
	assert.Equal(t, 60.0, m.Tempo())
	assert.Contains(t, m.Text(), "tempo: 60\n")
}

func TestDeleteTrackCascadesExactly(t *testing.T) {
	m := New(seqIDs())
	_, err := m.AddTrack("bass", note.TrackPatch{Kind: ptr(note.KindMIDI)})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := m.AddNote(note.Patch{Start: note.Float(float64(i)), TrackID: note.String("bass")})
		require.NoError(t, err)
		_, err = m.AddNote(note.Patch{Start: note.Float(float64(i))})
		require.NoError(t, err)
	}
	_, err = m.AddNote(note.Patch{TrackID: note.String("orphan")})
	require.NoError(t, err)
	keep := map[string]bool{}
	for _, n := range m.Notes() {
		if n.TrackID() != "bass" {
			keep[n.ID()] = true
		}
	}

	require.True(t, m.DeleteTrack("bass"))
	got := map[string]bool{}
	for _, n := range m.Notes() {
		got[n.ID()] = true
	}
	assert.Equal(t, keep, got)
	_, ok := m.Track("bass")
	assert.False(t, ok)
	assert.False(t, m.DeleteTrack("bass"))

	// A track that exists only through note references still cascades.
	assert.True(t, m.DeleteTrack("orphan"))
	assert.Len(t, m.Notes(), 4)
}

func TestTextEditDoesNotRegenerate(t *testing.T) {
	m := New(seqIDs())
	var changes []Change
	m.Subscribe(func(c Change) { changes = append(changes, c) })

	typed := "tempo: 90   // slow\nPLAY C4 FOR 1s AT 0s\nsection x { chord_progression: [C, "
	diags := m.SetText(typed)
	assert.NotEmpty(t, diags)
	assert.Equal(t, typed, m.Text())
	assert.Equal(t, SourceText, m.Source())
	assert.Equal(t, 90.0, m.Tempo())
	require.Len(t, m.Notes(), 1)
	require.Equal(t, []Change{{Kind: ChangeText, Source: SourceText}}, changes)

	n := m.Notes()[0]
	_, err := m.UpdateNote(n.ID(), note.Patch{Pitch: note.Int(62)})
	require.NoError(t, err)
	assert.Equal(t, SourceModel, m.Source())
	assert.Equal(t, dsl.Generate(m.Notes(), dsl.Header{Tempo: 90, Key: "C_major", TimeSignature: "4/4"}), m.Text())
	assert.Contains(t, m.Text(), "pitch: D4")
	assert.Empty(t, m.Diagnostics())
	assert.Equal(t, Change{Kind: ChangeNotes, Source: SourceModel}, changes[len(changes)-1])
}

func TestListenerSeesRegeneratedText(t *testing.T) {
	m := New()
	var seen string
	m.Subscribe(func(c Change) { seen = m.Text() })
	_, err := m.AddNote(note.Patch{Pitch: note.Int(64)})
	require.NoError(t, err)
	assert.Contains(t, seen, "pitch: E4")
}

func TestUnsubscribeDuringNotify(t *testing.T) {
	m := New()
	calls := 0
	var unsub func()
	unsub = m.Subscribe(func(Change) {
		calls++
		unsub()
	})
	other := 0
	m.Subscribe(func(Change) { other++ })
	m.ToggleSnap()
	m.ToggleSnap()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestGridChangesKeepTypedText(t *testing.T) {
	m := New()
	m.SetText("PLAY C4 FOR 1s AT 0s")
	assert.False(t, m.ToggleSnap())
	m.SetGridResolution(8)
	assert.Equal(t, "PLAY C4 FOR 1s AT 0s", m.Text())
	assert.Equal(t, SourceText, m.Source())
}

func TestTextModelRoundTrip(t *testing.T) {
	m := New(seqIDs())
	m.SetTempo(140)
	for i := 0; i < 6; i++ {
		_, err := m.AddNote(note.Patch{Pitch: note.Int(60 + i), Start: note.Float(float64(i) * 0.25), Duration: note.Float(0.25)})
		require.NoError(t, err)
	}
	before := m.Notes()
	text := m.Text()

	other := New()
	other.SetText(text)
	assert.True(t, note.EqualEvents(before, other.Notes()))
	assert.Equal(t, 140.0, other.Tempo())
	assert.Empty(t, other.Diagnostics())
}

func TestSelectionIsSingle(t *testing.T) {
	m := New(seqIDs())
	a, _ := m.AddNote(note.Patch{})
	b, _ := m.AddNote(note.Patch{Start: note.Float(1)})
	require.NoError(t, m.Select(a.ID()))
	require.NoError(t, m.Select(b.ID()))
	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, b.ID(), sel.ID())
	assert.True(t, m.DeleteNote(b.ID()))
	_, ok = m.Selected()
	assert.False(t, ok)
}

func TestBulkEdits(t *testing.T) {
	m := New(seqIDs())
	a, _ := m.AddNote(note.Patch{Pitch: note.Int(120), Start: note.Float(0.13)})
	b, _ := m.AddNote(note.Patch{Pitch: note.Int(60), Start: note.Float(0.5)})

	assert.Equal(t, 1, m.TransposeNotes(12))
	na, _ := m.Note(a.ID())
	nb, _ := m.Note(b.ID())
	assert.Equal(t, 120, na.Pitch(), "out of range transpose keeps the note")
	assert.Equal(t, 72, nb.Pitch())

	assert.Equal(t, 1, m.QuantizeNotes())
	na, _ = m.Note(a.ID())
	assert.InDelta(t, 0.125, na.Start(), 1e-12)

	dup, err := m.DuplicateNote(b.ID(), 1)
	require.NoError(t, err)
	assert.NotEqual(t, b.ID(), dup.ID())
	assert.Equal(t, 1.5, dup.Start())
	assert.Len(t, m.Notes(), 3)
}

func TestTracks(t *testing.T) {
	m := New(seqIDs())
	tr, err := m.AddTrack("", note.TrackPatch{Name: note.String("Drums"), Kind: ptr(note.KindDrum)})
	require.NoError(t, err)
	assert.Equal(t, "n1", tr.ID)
	assert.Equal(t, 0.8, tr.Volume)
	_, err = m.AddTrack("n1", note.TrackPatch{})
	assert.ErrorIs(t, err, ErrDuplicateTrack)

	up, err := m.UpdateTrack(tr.ID, note.TrackPatch{Volume: note.Float(1.5), Solo: note.Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, up.Volume)
	assert.True(t, up.Solo)

	require.NoError(t, m.SetActiveTrack(tr.ID))
	n, err := m.AddNote(note.Patch{})
	require.NoError(t, err)
	assert.Equal(t, tr.ID, n.TrackID())
	m.DeleteTrack(tr.ID)
	assert.Equal(t, "main", m.ActiveTrack())
}

func TestLoadUsesTextHeader(t *testing.T) {
	m := New(seqIDs())
	tracks := []note.Track{{ID: "lead", Name: "Lead", Kind: note.KindSynthesizer, Volume: 0.5}}
	diags := m.Load("tempo: 150\nsection lead {\n  note: { pitch: A4, start: 0, duration: 0.5, velocity: 1 }\n}\n", tracks, 8, false)
	assert.Empty(t, diags)
	assert.Equal(t, 150.0, m.Tempo())
	assert.Equal(t, 8, m.GridResolution())
	assert.False(t, m.SnapEnabled())
	assert.Equal(t, "lead", m.ActiveTrack())
	require.Len(t, m.Tracks(), 1)
	require.Len(t, m.Notes(), 1)
	assert.Equal(t, 69, m.Notes()[0].Pitch())
}

func TestInitialTextIsCanonical(t *testing.T) {
	m := New()
	assert.True(t, strings.HasPrefix(m.Text(), "tempo: 120\nkey: C_major\ntime_signature: 4/4\n"))
	assert.Equal(t, 0.125, m.GridStep())
	assert.Equal(t, 0.125, m.Snap(0.1))
}

func ptr[T any](v T) *T { return &v }

func TestEmptyUpdateIsANoOp(t *testing.T) {
	m := New(seqIDs())
	n, err := m.AddNote(note.Patch{Pitch: note.Int(62)})
	require.NoError(t, err)
	var changes int
	m.Subscribe(func(Change) { changes++ })

	got, err := m.UpdateNote(n.ID(), note.Patch{})
	require.NoError(t, err)
	assert.Equal(t, n, got)
	assert.Zero(t, changes)

	_, err = m.UpdateNote("ghost", note.Patch{})
	assert.ErrorIs(t, err, ErrNoteNotFound)
}
