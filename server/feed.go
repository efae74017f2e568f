package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/roundtable/orchestrator"
)

// feed streams the live orchestrator events of a session as JSON text
// frames. The first frame is a loop_state snapshot, followed by a delta with
// the in-flight text when an agent is mid-turn.
func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		s.logger.Error("Failed to accept WebSocket", "session_id", id, "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			s.logger.Debug("Failed to close websocket", "session_id", id, "error", closeErr)
		}
	}()

	events, unsubscribe := s.orch.Subscribe(id)
	defer unsubscribe()

	// Client frames are ignored; CloseRead ends ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	now := time.Now().UTC()
	if err := s.writeFrame(ctx, ws, orchestrator.Event{Type: orchestrator.EventLoopState, SessionID: id, State: s.orch.State(id), At: now}); err != nil {
		return
	}
	if text, ok := s.orch.Streaming(id); ok {
		if err := s.writeFrame(ctx, ws, orchestrator.Event{Type: orchestrator.EventDelta, SessionID: id, Text: text, At: now}); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeFrame(ctx, ws, ev); err != nil {
				s.logger.Debug("Feed write failed", "session_id", id, "error", err)
				return
			}
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, ws *websocket.Conn, ev orchestrator.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, ev)
}
