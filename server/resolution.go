package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/roundtable/core"
)

func (s *Server) getResolution(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.pipeline.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, pkg)
}

type transitionFunc func(ctx context.Context, sessionID, itemID string) (core.ResolutionItem, bool, error)

// transition adapts an item approve/reject call. Illegal transitions answer
// 200 with changed=false.
func (s *Server) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, changed, err := fn(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		JSON(w, http.StatusOK, map[string]any{"item": item, "changed": changed})
	}
}

func (s *Server) approveAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.pipeline.ApproveAll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"approved": n})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.pipeline.Execute(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pkg, err := s.pipeline.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"report": report, "resolution": pkg})
}
