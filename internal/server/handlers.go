package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	chordcraft "github.com/cbegin/chordcraft-go"
	"github.com/cbegin/chordcraft-go/internal/dsl"
	"github.com/cbegin/chordcraft-go/internal/note"
	"github.com/cbegin/chordcraft-go/internal/playback"
	"github.com/cbegin/chordcraft-go/internal/timeline"
)

type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type changeMessage struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

type diagnosticsMessage struct {
	Type        string           `json:"type"`
	Diagnostics []diagnosticJSON `json:"diagnostics"`
}

type eventMessage struct {
	Type       string          `json:"type"`
	Generation uint64          `json:"generation"`
	Event      *playback.Event `json:"event,omitempty"`
	Message    string          `json:"message,omitempty"`
}

func playbackMessage(ev chordcraft.PlaybackEvent) eventMessage {
	m := eventMessage{Generation: ev.Generation}
	switch ev.Kind {
	case chordcraft.EventTrigger:
		m.Type = "trigger"
		m.Event = &ev.Event
	case chordcraft.EventWarning:
		m.Type = "warning"
		m.Message = ev.Message
	case chordcraft.EventPlaybackEnded:
		m.Type = "ended"
	}
	return m
}

type diagnosticJSON struct {
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func diagnosticsJSON(diags []dsl.Diagnostic) []diagnosticJSON {
	out := make([]diagnosticJSON, 0, len(diags))
	for _, d := range diags {
		out = append(out, diagnosticJSON{Line: d.Line, Col: d.Col, Severity: d.Severity.String(), Message: d.Message})
	}
	return out
}

type textJSON struct {
	Text        string           `json:"text"`
	Source      string           `json:"source"`
	Diagnostics []diagnosticJSON `json:"diagnostics"`
}

// textMessage greets a new socket with the current text.
type textMessage struct {
	Type string `json:"type"`
	textJSON
}

type noteJSON struct {
	ID        string  `json:"id"`
	Pitch     int     `json:"pitch"`
	PitchName string  `json:"pitchName"`
	Start     float64 `json:"start"`
	Duration  float64 `json:"duration"`
	Velocity  float64 `json:"velocity"`
	TrackID   string  `json:"trackId"`
}

func toNoteJSON(n note.Note) noteJSON {
	return noteJSON{
		ID:        n.ID(),
		Pitch:     n.Pitch(),
		PitchName: n.PitchName(),
		Start:     n.Start(),
		Duration:  n.Duration(),
		Velocity:  n.Velocity(),
		TrackID:   n.TrackID(),
	}
}

type notePatchJSON struct {
	Pitch    *int     `json:"pitch"`
	Start    *float64 `json:"start"`
	Duration *float64 `json:"duration"`
	Velocity *float64 `json:"velocity"`
	TrackID  *string  `json:"trackId"`
}

func (p notePatchJSON) patch() note.Patch {
	return note.Patch{Pitch: p.Pitch, Start: p.Start, Duration: p.Duration, Velocity: p.Velocity, TrackID: p.TrackID}
}

type trackPatchJSON struct {
	ID     string   `json:"id"`
	Name   *string  `json:"name"`
	Kind   *string  `json:"kind"`
	Color  *string  `json:"color"`
	Volume *float64 `json:"volume"`
	Muted  *bool    `json:"muted"`
	Solo   *bool    `json:"solo"`
}

func (p trackPatchJSON) patch() (note.TrackPatch, error) {
	tp := note.TrackPatch{Name: p.Name, Color: p.Color, Volume: p.Volume, Muted: p.Muted, Solo: p.Solo}
	if p.Kind != nil {
		k, err := note.ParseKind(*p.Kind)
		if err != nil {
			return note.TrackPatch{}, err
		}
		tp.Kind = &k
	}
	return tp, nil
}

type playbackJSON struct {
	State      string  `json:"state"`
	Position   float64 `json:"position"`
	Generation uint64  `json:"generation"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, timeline.ErrNoteNotFound), errors.Is(err, timeline.ErrTrackNotFound):
		status = http.StatusNotFound
	case errors.Is(err, timeline.ErrDuplicateTrack):
		status = http.StatusConflict
	case errors.Is(err, playback.ErrEngineUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorJSON{Error: err.Error()})
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad request body: %w", err)
	}
	return nil
}

func (s *Server) textState() textJSON {
	m := s.studio.Model()
	return textJSON{Text: m.Text(), Source: m.Source().String(), Diagnostics: diagnosticsJSON(m.Diagnostics())}
}

func (s *Server) getText(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.textState())
}

func (s *Server) putText(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studio.SetText(body.Text)
	writeJSON(w, http.StatusOK, s.textState())
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notes := s.studio.Model().Notes()
	out := make([]noteJSON, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteJSON(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	var body notePatchJSON
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.studio.Model().AddNote(body.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteJSON(n))
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	var body notePatchJSON
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.studio.Model().UpdateNote(mux.Vars(r)["id"], body.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteJSON(n))
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.studio.Model().DeleteNote(id) {
		writeError(w, fmt.Errorf("delete note %q: %w", id, timeline.ErrNoteNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.studio.Model().Tracks())
}

func (s *Server) addTrack(w http.ResponseWriter, r *http.Request) {
	var body trackPatchJSON
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, err := body.patch()
	if err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.studio.Model().AddTrack(body.ID, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTrack(w http.ResponseWriter, r *http.Request) {
	var body trackPatchJSON
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, err := body.patch()
	if err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.studio.Model().UpdateTrack(mux.Vars(r)["id"], p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// deleteTrack also removes the track's notes.
func (s *Server) deleteTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.studio.Model().DeleteTrack(id) {
		writeError(w, fmt.Errorf("delete track %q: %w", id, timeline.ErrTrackNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putTempo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BPM float64 `json:"bpm"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]float64{"tempo": s.studio.Model().SetTempo(body.BPM)})
}

func (s *Server) putGrid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Resolution int `json:"resolution"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"gridResolution": s.studio.Model().SetGridResolution(body.Resolution)})
}

func (s *Server) toggleSnap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"snap": s.studio.Model().ToggleSnap()})
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.studio.Schedule()
	if events == nil {
		events = []playback.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) playbackState() playbackJSON {
	return playbackJSON{
		State:      s.studio.PlaybackState().String(),
		Position:   s.studio.PlaybackPosition(),
		Generation: s.studio.Scheduler().Generation(),
	}
}

func (s *Server) getPlayback(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.playbackState())
}

func (s *Server) postPlayback(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch mux.Vars(r)["action"] {
	case "play":
		if err := s.studio.Play(); err != nil {
			writeError(w, err)
			return
		}
	case "pause":
		s.studio.Pause()
	case "stop":
		s.studio.Stop()
	}
	writeJSON(w, http.StatusOK, s.playbackState())
}
