// Package timeline holds the Model, the single source of truth for notes,
// tracks, tempo, grid settings and selection. Text edits and structured
// edits both go through it and it keeps the DSL text in step with the notes.
package timeline

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cbegin/chordcraft-go/internal/dsl"
	"github.com/cbegin/chordcraft-go/internal/music"
	"github.com/cbegin/chordcraft-go/internal/note"
)

var (
	ErrNoteNotFound   = errors.New("note not found")
	ErrTrackNotFound  = errors.New("track not found")
	ErrDuplicateTrack = errors.New("track already exists")
)

// Source records which side changed last.
type Source int

const (
	SourceModel Source = iota
	SourceText
)

func (s Source) String() string {
	if s == SourceText {
		return "text"
	}
	return "model"
}

type ChangeKind int

const (
	ChangeNotes ChangeKind = iota + 1
	ChangeTracks
	ChangeTempo
	ChangeGrid
	ChangeHeader
	ChangeText
	ChangeSelection
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNotes:
		return "notes"
	case ChangeTracks:
		return "tracks"
	case ChangeTempo:
		return "tempo"
	case ChangeGrid:
		return "grid"
	case ChangeHeader:
		return "header"
	case ChangeText:
		return "text"
	case ChangeSelection:
		return "selection"
	}
	return "unknown"
}

// Change is delivered to listeners after a mutation has been applied.
type Change struct {
	Kind   ChangeKind
	Source Source
}

type Listener func(Change)

type subscription struct {
	id int
	fn Listener
}

// Model is not safe for concurrent use. Its owner serializes access.
type Model struct {
	cfg    modelConfig
	log    *slog.Logger
	parser *dsl.Parser
	gen    *dsl.Generator

	notes  []note.Note
	tracks []note.Track
	tempo  float64
	grid   int
	snap   bool
	key    string
	meter  string

	text        string
	source      Source
	diagnostics []dsl.Diagnostic

	selected    string
	activeTrack string

	subs   []subscription
	nextID int
}

func New(opts ...Option) *Model {
	cfg := defaultModelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.dsl = cfg.dsl.Normalize()
	d := cfg.dsl
	m := &Model{
		cfg:         cfg,
		log:         cfg.logger,
		parser:      dsl.NewParser(d),
		gen:         dsl.NewGenerator(d),
		tracks:      []note.Track{note.DefaultTrack()},
		tempo:       music.DefaultTempo,
		grid:        music.DefaultGridResolution,
		snap:        true,
		key:         d.DefaultKey,
		meter:       d.DefaultTimeSignature,
		activeTrack: note.DefaultTrackID,
	}
	m.regenerate()
	return m
}

// Subscribe registers fn. Listeners run synchronously after each change in
// subscription order. The returned func removes fn and may be called from
// inside a listener.
func (m *Model) Subscribe(fn Listener) (unsubscribe func()) {
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	return func() {
		m.subs = slices.DeleteFunc(m.subs, func(s subscription) bool { return s.id == id })
	}
}

func (m *Model) notify(kind ChangeKind) {
	c := Change{Kind: kind, Source: m.source}
	for _, s := range slices.Clone(m.subs) {
		s.fn(c)
	}
}

// commit finishes a structured edit: the text is regenerated before any
// listener hears about the change.
func (m *Model) commit(kind ChangeKind) {
	m.source = SourceModel
	m.regenerate()
	m.notify(kind)
}

func (m *Model) regenerate() {
	m.text = m.gen.Generate(m.notes, m.header())
	m.diagnostics = nil
}

func (m *Model) header() dsl.Header {
	return dsl.Header{Tempo: m.tempo, Key: m.key, TimeSignature: m.meter}
}

// SetText replaces the notes with the parse of text. The text is kept as
// typed; it is not regenerated. Header fields present in text are adopted.
func (m *Model) SetText(text string) []dsl.Diagnostic {
	r := m.parser.Parse(text)
	m.source = SourceText
	m.text = text
	m.diagnostics = r.Diagnostics
	m.notes = m.withIDs(r.Notes)
	m.tempo = music.ClampTempo(r.Header.Tempo)
	m.key = r.Header.Key
	m.meter = r.Header.TimeSignature
	m.selected = ""
	m.log.Debug("timeline: text applied", "notes", len(m.notes), "diagnostics", len(r.Diagnostics))
	m.notify(ChangeText)
	return slices.Clone(r.Diagnostics)
}

func (m *Model) withIDs(notes []note.Note) []note.Note {
	out := make([]note.Note, len(notes))
	for i, n := range notes {
		out[i] = n.WithID(m.cfg.newID())
	}
	return out
}

func (m *Model) Text() string                  { return m.text }
func (m *Model) Source() Source                { return m.source }
func (m *Model) Diagnostics() []dsl.Diagnostic { return slices.Clone(m.diagnostics) }
func (m *Model) Tempo() float64                { return m.tempo }
func (m *Model) GridResolution() int           { return m.grid }
func (m *Model) SnapEnabled() bool             { return m.snap }
func (m *Model) Key() string                   { return m.key }
func (m *Model) TimeSignature() string         { return m.meter }
func (m *Model) ActiveTrack() string           { return m.activeTrack }

func (m *Model) Grid() music.Grid {
	return music.Grid{Tempo: m.tempo, Resolution: m.grid, Enabled: m.snap}
}

func (m *Model) GridStep() float64 { return m.Grid().Step() }

// Snap rounds t to the grid, or returns it unchanged when snapping is off.
func (m *Model) Snap(t float64) float64 { return m.Grid().Snap(t) }

// Notes returns a copy ordered by start time, then pitch.
func (m *Model) Notes() []note.Note { return note.Sorted(m.notes) }

func (m *Model) Note(id string) (note.Note, bool) {
	i := m.noteIndex(id)
	if i < 0 {
		return note.Note{}, false
	}
	return m.notes[i], true
}

func (m *Model) Tracks() []note.Track { return slices.Clone(m.tracks) }

func (m *Model) Track(id string) (note.Track, bool) {
	i := m.trackIndex(id)
	if i < 0 {
		return note.Track{}, false
	}
	return m.tracks[i], true
}

func (m *Model) noteIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(m.notes, func(n note.Note) bool { return n.ID() == id })
}

func (m *Model) trackIndex(id string) int {
	return slices.IndexFunc(m.tracks, func(t note.Track) bool { return t.ID == id })
}

// AddNote creates a note from p. Missing fields default to middle C at time
// zero, one beat long, velocity 0.8, on the active track.
func (m *Model) AddNote(p note.Patch) (note.Note, error) {
	base := note.MustNew(music.MiddleC, 0, music.BeatSeconds(m.tempo), m.cfg.dsl.DefaultVelocity, m.activeTrack)
	if p.TrackID != nil && *p.TrackID == "" {
		p.TrackID = nil
	}
	n, err := base.Apply(p)
	if err != nil {
		return note.Note{}, fmt.Errorf("add note: %w", err)
	}
	n = n.WithID(m.cfg.newID())
	m.notes = append(m.notes, n)
	m.commit(ChangeNotes)
	return n, nil
}

// UpdateNote applies p to the note with id. An invalid patch leaves the note
// untouched.
func (m *Model) UpdateNote(id string, p note.Patch) (note.Note, error) {
	i := m.noteIndex(id)
	if i < 0 {
		return note.Note{}, fmt.Errorf("update note %q: %w", id, ErrNoteNotFound)
	}
	if p.Empty() {
		return m.notes[i], nil
	}
	n, err := m.notes[i].Apply(p)
	if err != nil {
		return m.notes[i], fmt.Errorf("update note %q: %w", id, err)
	}
	if n == m.notes[i] {
		return n, nil
	}
	m.notes[i] = n
	m.commit(ChangeNotes)
	return n, nil
}

func (m *Model) DeleteNote(id string) bool {
	i := m.noteIndex(id)
	if i < 0 {
		return false
	}
	m.notes = slices.Delete(m.notes, i, i+1)
	if m.selected == id {
		m.selected = ""
	}
	m.commit(ChangeNotes)
	return true
}

// DuplicateNote copies the note offset seconds later. The copy gets a new id.
func (m *Model) DuplicateNote(id string, offset float64) (note.Note, error) {
	i := m.noteIndex(id)
	if i < 0 {
		return note.Note{}, fmt.Errorf("duplicate note %q: %w", id, ErrNoteNotFound)
	}
	src := m.notes[i]
	n, err := src.Apply(note.Patch{Start: note.Float(src.Start() + offset)})
	if err != nil {
		return note.Note{}, fmt.Errorf("duplicate note %q: %w", id, err)
	}
	n = n.WithID(m.cfg.newID())
	m.notes = append(m.notes, n)
	m.commit(ChangeNotes)
	return n, nil
}

// TransposeNotes shifts every note by semitones. Notes that would leave the
// pitch range stay where they are. It returns how many notes moved.
func (m *Model) TransposeNotes(semitones int) int {
	if semitones == 0 {
		return 0
	}
	moved := 0
	for i, n := range m.notes {
		out, err := n.Apply(note.Patch{Pitch: note.Int(n.Pitch() + semitones)})
		if err != nil {
			continue
		}
		m.notes[i] = out
		moved++
	}
	if moved > 0 {
		m.commit(ChangeNotes)
	}
	return moved
}

// QuantizeNotes snaps every start time to the grid, whether or not snapping
// is enabled for editing. It returns how many notes moved.
func (m *Model) QuantizeNotes() int {
	step := m.GridStep()
	moved := 0
	for i, n := range m.notes {
		t := music.Snap(n.Start(), step)
		if t == n.Start() {
			continue
		}
		out, err := n.Apply(note.Patch{Start: note.Float(t)})
		if err != nil {
			continue
		}
		m.notes[i] = out
		moved++
	}
	if moved > 0 {
		m.commit(ChangeNotes)
	}
	return moved
}

var trackColors = []string{"#3b82f6", "#ef4444", "#10b981", "#f59e0b", "#8b5cf6", "#ec4899", "#14b8a6", "#f97316"}

// AddTrack creates a track. An empty id gets a generated one.
func (m *Model) AddTrack(id string, p note.TrackPatch) (note.Track, error) {
	if id == "" {
		id = m.cfg.newID()
	}
	if m.trackIndex(id) >= 0 {
		return note.Track{}, fmt.Errorf("add track %q: %w", id, ErrDuplicateTrack)
	}
	t := note.Track{
		ID:     id,
		Name:   fmt.Sprintf("Track %d", len(m.tracks)+1),
		Kind:   note.KindSynthesizer,
		Color:  trackColors[len(m.tracks)%len(trackColors)],
		Volume: note.DefaultVolume,
	}.Apply(p)
	m.tracks = append(m.tracks, t)
	m.commit(ChangeTracks)
	return t, nil
}

func (m *Model) UpdateTrack(id string, p note.TrackPatch) (note.Track, error) {
	i := m.trackIndex(id)
	if i < 0 {
		return note.Track{}, fmt.Errorf("update track %q: %w", id, ErrTrackNotFound)
	}
	m.tracks[i] = m.tracks[i].Apply(p)
	m.commit(ChangeTracks)
	return m.tracks[i], nil
}

// DeleteTrack removes the track and exactly the notes that reference it.
// It reports whether anything was removed.
func (m *Model) DeleteTrack(id string) bool {
	removedTrack := false
	if i := m.trackIndex(id); i >= 0 {
		m.tracks = slices.Delete(m.tracks, i, i+1)
		removedTrack = true
	}
	before := len(m.notes)
	m.notes = slices.DeleteFunc(m.notes, func(n note.Note) bool { return n.TrackID() == id })
	removedNotes := before - len(m.notes)
	if !removedTrack && removedNotes == 0 {
		return false
	}
	if m.selected != "" && m.noteIndex(m.selected) < 0 {
		m.selected = ""
	}
	if m.activeTrack == id {
		m.activeTrack = note.DefaultTrackID
		if len(m.tracks) > 0 {
			m.activeTrack = m.tracks[0].ID
		}
	}
	m.log.Debug("timeline: track deleted", "track", id, "notes", removedNotes)
	m.commit(ChangeTracks)
	return true
}

func (m *Model) SetActiveTrack(id string) error {
	if m.trackIndex(id) < 0 {
		return fmt.Errorf("set active track %q: %w", id, ErrTrackNotFound)
	}
	m.activeTrack = id
	return nil
}

// SetTempo clamps bpm into the playable range and returns the value used.
func (m *Model) SetTempo(bpm float64) float64 {
	m.tempo = music.ClampTempo(bpm)
	m.commit(ChangeTempo)
	return m.tempo
}

func (m *Model) SetKey(key string) {
	if key == "" {
		key = m.cfg.dsl.DefaultKey
	}
	m.key = key
	m.commit(ChangeHeader)
}

func (m *Model) SetTimeSignature(ts string) error {
	meter, err := music.ParseMeter(ts)
	if err != nil {
		return err
	}
	m.meter = meter.String()
	m.commit(ChangeHeader)
	return nil
}

// SetGridResolution clamps n and returns the value used. Grid settings are
// not part of the text, so the text is left alone.
func (m *Model) SetGridResolution(n int) int {
	m.grid = music.ClampGridResolution(n)
	m.notify(ChangeGrid)
	return m.grid
}

func (m *Model) ToggleSnap() bool {
	m.snap = !m.snap
	m.notify(ChangeGrid)
	return m.snap
}

func (m *Model) SetSnap(enabled bool) {
	if m.snap != enabled {
		m.ToggleSnap()
	}
}

// Select makes id the single selected note.
func (m *Model) Select(id string) error {
	if m.noteIndex(id) < 0 {
		return fmt.Errorf("select %q: %w", id, ErrNoteNotFound)
	}
	if m.selected == id {
		return nil
	}
	m.selected = id
	m.notify(ChangeSelection)
	return nil
}

func (m *Model) ClearSelection() {
	if m.selected == "" {
		return
	}
	m.selected = ""
	m.notify(ChangeSelection)
}

func (m *Model) Selected() (note.Note, bool) { return m.Note(m.selected) }

// Snapshot is an immutable view for playback and export.
type Snapshot struct {
	Notes  []note.Note
	Tracks []note.Track
	Tempo  float64
	Header dsl.Header
}

func (m *Model) Snapshot() Snapshot {
	return Snapshot{Notes: m.Notes(), Tracks: m.Tracks(), Tempo: m.tempo, Header: m.header()}
}

// Load restores a saved project: tracks and grid settings are taken as given
// and the notes come from text, whose header wins for tempo, key and meter.
func (m *Model) Load(text string, tracks []note.Track, grid int, snap bool) []dsl.Diagnostic {
	m.tracks = m.tracks[:0]
	for _, t := range tracks {
		if t.ID == "" || m.trackIndex(t.ID) >= 0 {
			continue
		}
		m.tracks = append(m.tracks, t.Normalize())
	}
	if len(m.tracks) == 0 {
		m.tracks = append(m.tracks, note.DefaultTrack())
	}
	m.activeTrack = m.tracks[0].ID
	m.grid = music.ClampGridResolution(grid)
	m.snap = snap
	m.notify(ChangeTracks)
	return m.SetText(text)
}
