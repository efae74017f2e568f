package testutil

import (
	"time"

	"github.com/hupe1980/roundtable/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("pricing").Participants("a", "b").MaxTurns(4).Build()
type SessionBuilder struct {
	s *core.Session
}

// NewSessionBuilder creates a builder for an open round-robin session with a
// budget of 6 turns and no participants.
func NewSessionBuilder(topic string) *SessionBuilder {
	return &SessionBuilder{s: core.NewSession(topic, nil, 6)}
}

// ID overrides the generated session ID (chainable).
func (b *SessionBuilder) ID(id string) *SessionBuilder { b.s.ID = id; return b }

// Participants sets the ordered participant list (chainable).
func (b *SessionBuilder) Participants(ids ...string) *SessionBuilder {
	b.s.Participants = append([]string(nil), ids...)
	return b
}

// MaxTurns sets the turn budget (chainable).
func (b *SessionBuilder) MaxTurns(n int) *SessionBuilder { b.s.MaxTurns = n; return b }

// TurnCount sets completed official turns (chainable).
func (b *SessionBuilder) TurnCount(n int) *SessionBuilder { b.s.TurnCount = n; return b }

// Status sets the lifecycle status (chainable).
func (b *SessionBuilder) Status(st core.Status) *SessionBuilder { b.s.Status = st; return b }

// Routing sets the routing mode (chainable).
func (b *SessionBuilder) Routing(m core.RoutingMode) *SessionBuilder { b.s.RoutingMode = m; return b }

// Resolution sets the resolution mode (chainable).
func (b *SessionBuilder) Resolution(m core.ResolutionMode) *SessionBuilder {
	b.s.ResolutionMode = m
	return b
}

// UserWait sets the per-session wait for human turns (chainable).
func (b *SessionBuilder) UserWait(d time.Duration) *SessionBuilder { b.s.UserWaitTimeout = d; return b }

// Attachment adds a document excerpt (chainable).
func (b *SessionBuilder) Attachment(name, content string) *SessionBuilder {
	b.s.Metadata.Attachments = append(b.s.Metadata.Attachments, core.Attachment{Name: name, Content: content})
	return b
}

// Build returns a copy of the session, so a builder can stamp out several.
func (b *SessionBuilder) Build() *core.Session { return b.s.Clone() }
