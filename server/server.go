// Package server exposes sessions, orchestration controls, resolution
// review and the live feed over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/orchestrator"
	"github.com/hupe1980/roundtable/resolution"
)

// ContextStore receives entity and attachment snippets for new sessions and
// copies them when a session is cloned. *memory.InMemoryStore satisfies it.
type ContextStore interface {
	Store(sessionID string, content string, metadata map[string]any) error
	CopySession(from, to string)
}

// ProfileLister lists known agent profiles. *profile.Registry satisfies it.
type ProfileLister interface {
	List() []core.Profile
}

// Options configure a Server.
type Options struct {
	Context  ContextStore
	Profiles ProfileLister
	// OriginPatterns are accepted websocket origins (default all).
	OriginPatterns []string
	// WriteTimeout bounds a single websocket frame write (default 5s).
	WriteTimeout time.Duration
	Logger       logging.Logger
}

// Server is the HTTP API.
type Server struct {
	store    core.SessionStore
	orch     *orchestrator.Orchestrator
	pipeline *resolution.Pipeline
	opts     Options
	logger   logging.Logger
	router   chi.Router
}

// New creates a server and registers its routes.
func New(store core.SessionStore, orch *orchestrator.Orchestrator, pipeline *resolution.Pipeline, optFns ...func(o *Options)) *Server {
	opts := Options{
		OriginPatterns: []string{"*"},
		WriteTimeout:   5 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Server{
		store:    store,
		orch:     orch,
		pipeline: pipeline,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/profiles", s.listProfiles)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Get("/messages", s.listMessages)
			r.Post("/messages", s.submitMessage)
			r.Post("/start", s.startLoop)
			r.Post("/pause", s.control(s.orch.Pause))
			r.Post("/resume", s.control(s.orch.Resume))
			r.Post("/cancel", s.control(s.orch.Cancel))
			r.Post("/raise-hand", s.raiseHand)
			r.Post("/clone", s.cloneSession)

			r.Route("/resolution", func(r chi.Router) {
				r.Get("/", s.getResolution)
				r.Post("/approve-all", s.approveAll)
				r.Post("/execute", s.execute)
				r.Post("/items/{itemID}/approve", s.transition(s.pipeline.Approve))
				r.Post("/items/{itemID}/reject", s.transition(s.pipeline.Reject))
			})
		})
	})

	r.Get("/ws/sessions/{id}", s.feed)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrItemNotFound),
		errors.Is(err, core.ErrNoPackage):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSessionClosed),
		errors.Is(err, core.ErrLoopRunning),
		errors.Is(err, core.ErrLoopNotRunning),
		errors.Is(err, core.ErrNotWaitingForUser),
		errors.Is(err, core.ErrDuplicateSessionID):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidSession):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode request: %v", core.ErrInvalidSession, err)
	}
	return nil
}
