// Package server exposes a Studio over HTTP and pushes model changes and
// playback triggers to WebSocket clients.
package server

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	chordcraft "github.com/cbegin/chordcraft-go"
	"github.com/cbegin/chordcraft-go/internal/timeline"
)

// DefaultDebounce is how long socket text edits settle before they are
// parsed.
const DefaultDebounce = 300 * time.Millisecond

type Option func(*config)

type config struct {
	logger   *slog.Logger
	debounce time.Duration
	origins  []string
}

func defaultConfig() config {
	return config{
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		origins:  []string{"*"},
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithAllowedOrigins restricts cross-origin requests. The default allows any
// origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *config) {
		if len(origins) > 0 {
			c.origins = origins
		}
	}
}

// Server owns a Studio. Every request runs under one mutex, so the model is
// only ever touched by one goroutine at a time.
type Server struct {
	mu     sync.Mutex
	studio *chordcraft.Studio
	log    *slog.Logger
	hub    *hub

	upgrader websocket.Upgrader
	handler  http.Handler

	debounced func(func())
	pendingMu sync.Mutex
	pending   *string

	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

func New(studio *chordcraft.Studio, opts ...Option) *Server {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		studio:    studio,
		log:       cfg.logger,
		hub:       newHub(cfg.logger),
		debounced: debounce.New(cfg.debounce),
		done:      make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: originChecker(cfg.origins)}
	s.unsubscribe = studio.Model().Subscribe(func(c timeline.Change) {
		s.hub.broadcast(changeMessage{Type: "change", Kind: c.Kind.String(), Source: c.Source.String()})
	})
	go s.forward(studio.Watch())

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(s.routes())
	return s
}

// originChecker admits sockets from the same origins CORS allows. Requests
// without an Origin header are not from a browser and pass.
func originChecker(origins []string) func(*http.Request) bool {
	if slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

// Close disconnects every socket and stops forwarding playback events.
// Playback itself is stopped.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.unsubscribe()
		s.studio.Stop()
		s.mu.Unlock()
		s.hub.closeAll()
	})
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter().StrictSlash(true)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/text", s.getText).Methods(http.MethodGet)
	api.HandleFunc("/text", s.putText).Methods(http.MethodPut)
	api.HandleFunc("/notes", s.listNotes).Methods(http.MethodGet)
	api.HandleFunc("/notes", s.addNote).Methods(http.MethodPost)
	api.HandleFunc("/notes/{id}", s.updateNote).Methods(http.MethodPatch)
	api.HandleFunc("/notes/{id}", s.deleteNote).Methods(http.MethodDelete)
	api.HandleFunc("/tracks", s.listTracks).Methods(http.MethodGet)
	api.HandleFunc("/tracks", s.addTrack).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id}", s.updateTrack).Methods(http.MethodPatch)
	api.HandleFunc("/tracks/{id}", s.deleteTrack).Methods(http.MethodDelete)
	api.HandleFunc("/tempo", s.putTempo).Methods(http.MethodPut)
	api.HandleFunc("/grid", s.putGrid).Methods(http.MethodPut)
	api.HandleFunc("/snap/toggle", s.toggleSnap).Methods(http.MethodPost)
	api.HandleFunc("/schedule", s.getSchedule).Methods(http.MethodGet)
	api.HandleFunc("/playback", s.getPlayback).Methods(http.MethodGet)
	api.HandleFunc("/playback/{action:play|pause|stop}", s.postPlayback).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	return r
}

func (s *Server) forward(events <-chan chordcraft.PlaybackEvent) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-events:
			s.hub.broadcast(playbackMessage(ev))
		}
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("server: websocket upgrade", "err", err)
		return
	}
	s.mu.Lock()
	c := s.hub.add(conn, textMessage{Type: "text", textJSON: s.textState()})
	s.mu.Unlock()
	defer s.hub.remove(c)
	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("server: socket closed", "err", err)
			}
			return
		}
		switch in.Type {
		case "text":
			s.queueText(in.Text)
		default:
			s.log.Debug("server: unknown socket message", "type", in.Type)
		}
	}
}

// queueText keeps only the latest edit; it is applied once typing pauses.
func (s *Server) queueText(text string) {
	s.pendingMu.Lock()
	s.pending = &text
	s.pendingMu.Unlock()
	s.debounced(s.applyPending)
}

func (s *Server) applyPending() {
	s.pendingMu.Lock()
	text := s.pending
	s.pending = nil
	s.pendingMu.Unlock()
	if text == nil {
		return
	}
	s.mu.Lock()
	diags := s.studio.SetText(*text)
	s.mu.Unlock()
	s.hub.broadcast(diagnosticsMessage{Type: "diagnostics", Diagnostics: diagnosticsJSON(diags)})
}
