package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/core"
)

// InMemoryStore is a volatile SessionStore implementation storing sessions in
// a process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Sessions and messages are cloned on the
// way in and out to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	messages map[string][]core.Message
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		messages: make(map[string][]core.Message),
	}
}

// Create stores a new session.
func (s *InMemoryStore) Create(_ context.Context, sess *core.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: missing id", core.ErrInvalidSession)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("%w: %s", core.ErrDuplicateSessionID, sess.ID)
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a clone of the session.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return sess.Clone(), nil
}

// List returns clones of all sessions, newest first.
func (s *InMemoryStore) List(_ context.Context) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Update runs fn on a clone under the write lock and commits it when fn
// returns nil.
func (s *InMemoryStore) Update(_ context.Context, id string, fn core.UpdateFunc) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	s.sessions[id] = next
	return next.Clone(), nil
}

// AppendMessage appends a message to its session's history.
func (s *InMemoryStore) AppendMessage(_ context.Context, m core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[m.SessionID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, m.SessionID)
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m.Clone())
	return nil
}

// AppendTurn runs fn and appends m under one write lock. Nothing changes
// when fn fails.
func (s *InMemoryStore) AppendTurn(_ context.Context, m core.Message, fn core.UpdateFunc) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[m.SessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, m.SessionID)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	s.sessions[m.SessionID] = next
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m.Clone())
	return next.Clone(), nil
}

// ListMessages returns the session's messages in append order.
func (s *InMemoryStore) ListMessages(_ context.Context, sessionID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	src := s.messages[sessionID]
	out := make([]core.Message, len(src))
	for i, m := range src {
		out[i] = m.Clone()
	}
	return out, nil
}
