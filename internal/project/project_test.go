package project

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/chordcraft-go/internal/note"
	"github.com/cbegin/chordcraft-go/internal/timeline"
)

func composed(t *testing.T) *timeline.Model {
	t.Helper()
	m := timeline.New()
	m.SetTempo(100)
	m.SetKey("A_minor")
	m.SetGridResolution(8)
	_, err := m.AddTrack("bass", note.TrackPatch{Name: note.String("Bass"), Volume: note.Float(0.5), Muted: note.Bool(true)})
	require.NoError(t, err)
	for i, p := range []int{57, 60, 64} {
		_, err := m.AddNote(note.Patch{Pitch: note.Int(p), Start: note.Float(float64(i) * 0.3)})
		require.NoError(t, err)
	}
	_, err = m.AddNote(note.Patch{Pitch: note.Int(33), Duration: note.Float(1.2), TrackID: note.String("bass")})
	require.NoError(t, err)
	return m
}

func TestBundleRoundTrip(t *testing.T) {
	src := composed(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FromModel(src, "Etude")))
	assert.Contains(t, buf.String(), "dsl: |")
	assert.Contains(t, buf.String(), "title: Etude")

	b, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, Version, b.Version)

	dst := timeline.New()
	diags := b.Apply(dst)
	assert.Empty(t, diags)
	assert.True(t, note.EqualEvents(src.Notes(), dst.Notes()))
	assert.Equal(t, src.Tracks(), dst.Tracks())
	assert.Equal(t, 100.0, dst.Tempo())
	assert.Equal(t, "A_minor", dst.Key())
	assert.Equal(t, 8, dst.GridResolution())
	assert.True(t, dst.SnapEnabled())
	assert.Equal(t, timeline.SourceText, dst.Source())
}

func TestDecodeRejectsUnknownFieldsAndVersions(t *testing.T) {
	_, err := Decode(strings.NewReader("version: 1\nbogus: true\n"))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("version: 7\ndsl: \"\"\n"))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode(strings.NewReader(""))
	assert.Error(t, err)

	b, err := Decode(strings.NewReader("dsl: \"tempo: 90\"\n"))
	require.NoError(t, err)
	assert.Equal(t, Version, b.Version, "a missing version reads as the current one")
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs", "etude"+Extension)
	src := composed(t)
	require.NoError(t, Save(path, FromModel(src, "")))

	b, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, src.Text(), b.DSL)
	assert.Len(t, b.Tracks, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
