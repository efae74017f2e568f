package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/orchestrator"
)

type createSessionRequest struct {
	Topic          string              `json:"topic"`
	Participants   []string            `json:"participants"`
	MaxTurns       int                 `json:"max_turns"`
	RoutingMode    core.RoutingMode    `json:"routing_mode,omitempty"`
	ResolutionMode core.ResolutionMode `json:"resolution_mode,omitempty"`
	// UserWaitTimeout is a Go duration string such as "90s".
	UserWaitTimeout string            `json:"user_wait_timeout,omitempty"`
	Attachments     []core.Attachment `json:"attachments,omitempty"`
	// Context snippets are made available to agent prompts.
	Context []string `json:"context,omitempty"`
	// Start launches the loop right after creation.
	Start bool `json:"start,omitempty"`
}

func (req createSessionRequest) session() (*core.Session, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", core.ErrInvalidSession)
	}
	if req.MaxTurns <= 0 {
		return nil, fmt.Errorf("%w: max_turns must be > 0", core.ErrInvalidSession)
	}
	sess := core.NewSession(req.Topic, req.Participants, req.MaxTurns)
	if req.RoutingMode != "" {
		if !req.RoutingMode.Valid() {
			return nil, fmt.Errorf("%w: unknown routing_mode %q", core.ErrInvalidSession, req.RoutingMode)
		}
		sess.RoutingMode = req.RoutingMode
	}
	if req.ResolutionMode != "" {
		if !req.ResolutionMode.Valid() {
			return nil, fmt.Errorf("%w: unknown resolution_mode %q", core.ErrInvalidSession, req.ResolutionMode)
		}
		sess.ResolutionMode = req.ResolutionMode
	}
	if req.UserWaitTimeout != "" {
		d, err := time.ParseDuration(req.UserWaitTimeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: invalid user_wait_timeout %q", core.ErrInvalidSession, req.UserWaitTimeout)
		}
		sess.UserWaitTimeout = d
	}
	sess.Metadata.Attachments = req.Attachments
	return sess, nil
}

type sessionView struct {
	Session   *core.Session      `json:"session"`
	State     orchestrator.State `json:"state"`
	Streaming string             `json:"streaming,omitempty"`
}

func (s *Server) view(sess *core.Session) sessionView {
	v := sessionView{Session: sess, State: s.orch.State(sess.ID)}
	if text, ok := s.orch.Streaming(sess.ID); ok {
		v.Streaming = text
	}
	return v
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := req.session()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.Context) > 0 && s.opts.Context == nil {
		s.fail(w, r, fmt.Errorf("%w: context snippets are not supported", core.ErrInvalidSession))
		return
	}
	if err := s.store.Create(r.Context(), sess); err != nil {
		s.fail(w, r, err)
		return
	}
	for _, snippet := range req.Context {
		if err := s.opts.Context.Store(sess.ID, snippet, map[string]any{"source": "request"}); err != nil {
			s.logger.Warn("Context snippet rejected", "session_id", sess.ID, "error", err)
		}
	}
	if req.Start {
		if err := s.orch.Start(context.WithoutCancel(r.Context()), sess.ID); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.logger.Info("Session created", "session_id", sess.ID, "participants", len(sess.Participants), "max_turns", sess.MaxTurns)
	JSON(w, http.StatusCreated, s.view(sess))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.view(sess))
	}
	JSON(w, http.StatusOK, out)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, s.view(sess))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, msgs)
}

func (s *Server) submitMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.orch.SubmitUserMessage(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}

func (s *Server) startLoop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.Start(context.WithoutCancel(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusAccepted, map[string]any{"session_id": id, "state": s.orch.State(id)})
}

// control adapts a loop control call (pause, resume, cancel) to a handler.
func (s *Server) control(fn func(sessionID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(id); err != nil {
			s.fail(w, r, err)
			return
		}
		JSON(w, http.StatusOK, map[string]any{"session_id": id, "state": s.orch.State(id)})
	}
}

func (s *Server) raiseHand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.RaiseHand(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"session_id": id, "raised_hand": true})
}

// cloneSession creates a fresh session with the settings, participants,
// attachments and context snippets of an existing one.
func (s *Server) cloneSession(w http.ResponseWriter, r *http.Request) {
	src, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	clone := src.CloneFresh()
	if err := s.store.Create(r.Context(), clone); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.opts.Context != nil {
		s.opts.Context.CopySession(src.ID, clone.ID)
	}
	s.logger.Info("Session cloned", "session_id", clone.ID, "source_id", src.ID)
	JSON(w, http.StatusCreated, s.view(clone))
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	if s.opts.Profiles == nil {
		JSON(w, http.StatusOK, []core.Profile{})
		return
	}
	JSON(w, http.StatusOK, s.opts.Profiles.List())
}
