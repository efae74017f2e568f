package core

import (
	"slices"
	"time"
)

// UserActorID identifies the human participant in participant lists and messages.
const UserActorID = "user"

// SystemActorID identifies messages authored by the orchestrator itself.
const SystemActorID = "system"

// Status is the lifecycle status of a conversation session.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusScheduled Status = "scheduled"
	StatusPreparing Status = "preparing"
	StatusOpen      Status = "open"
	StatusActive    Status = "active"
	StatusClosed    Status = "closed"
	StatusDeclined  Status = "declined"
)

// IsTerminal reports whether no loop may run for a session in this status.
func (s Status) IsTerminal() bool { return s == StatusClosed || s == StatusDeclined }

// Phase is the coarse conversational stage derived from turn progress.
type Phase string

const (
	PhaseOpening    Phase = "opening"
	PhaseDiscussion Phase = "discussion"
	PhaseWrapUp     Phase = "wrap-up"
)

// RoutingMode selects the speaker selection strategy.
type RoutingMode string

const (
	RoutingSmart      RoutingMode = "smart"
	RoutingRoundRobin RoutingMode = "round-robin"
)

// Valid reports whether m is a known routing mode.
func (m RoutingMode) Valid() bool { return m == RoutingSmart || m == RoutingRoundRobin }

// RoutingDecision records the outcome of the last speaker selection for auditability.
type RoutingDecision struct {
	ActorID    string    `json:"actor_id"`
	Reasoning  string    `json:"reasoning"`
	Slot       int       `json:"slot"`
	TurnNumber int       `json:"turn_number"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Summary is the structured end-of-session summary.
type Summary struct {
	Overview      string    `json:"overview"`
	KeyPoints     []string  `json:"key_points,omitempty"`
	Decisions     []string  `json:"decisions,omitempty"`
	OpenQuestions []string  `json:"open_questions,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Attachment is a document excerpt injected into agent prompts.
type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Metadata is the open metadata bag of a session. Stores merge it as a whole
// inside their read-modify-write Update.
type Metadata struct {
	TurnTracking    TurnTracking       `json:"turn_tracking,omitempty"`
	LastRouting     *RoutingDecision   `json:"last_routing,omitempty"`
	Summary         *Summary           `json:"summary,omitempty"`
	Resolution      *ResolutionPackage `json:"resolution,omitempty"`
	RaisedHand      bool               `json:"raised_hand,omitempty"`
	SkippedSlots    int                `json:"skipped_slots,omitempty"`
	InterjectionSeq int                `json:"interjection_seq,omitempty"`
	Attachments     []Attachment       `json:"attachments,omitempty"`
	Extra           map[string]string  `json:"extra,omitempty"`
}

// Clone returns a deep copy of the metadata bag.
func (m Metadata) Clone() Metadata {
	out := m
	out.TurnTracking = m.TurnTracking.Clone()
	if m.LastRouting != nil {
		lr := *m.LastRouting
		out.LastRouting = &lr
	}
	if m.Summary != nil {
		s := *m.Summary
		s.KeyPoints = slices.Clone(m.Summary.KeyPoints)
		s.Decisions = slices.Clone(m.Summary.Decisions)
		s.OpenQuestions = slices.Clone(m.Summary.OpenQuestions)
		out.Summary = &s
	}
	if m.Resolution != nil {
		out.Resolution = m.Resolution.Clone()
	}
	out.Attachments = slices.Clone(m.Attachments)
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Session is a bounded multi-party conversation.
//
// Contract:
//   - Participants are unique and ordered; order drives round-robin routing
//   - TurnCount only grows, by exactly one per completed official turn
//   - While a loop runs for the session, only that loop mutates TurnCount,
//     Status and Phase
type Session struct {
	ID              string         `json:"id"`
	Topic           string         `json:"topic"`
	Participants    []string       `json:"participants"`
	MaxTurns        int            `json:"max_turns"`
	TurnCount       int            `json:"turn_count"`
	Status          Status         `json:"status"`
	Phase           Phase          `json:"phase"`
	RoutingMode     RoutingMode    `json:"routing_mode"`
	ResolutionMode  ResolutionMode `json:"resolution_mode"`
	UserWaitTimeout time.Duration  `json:"user_wait_timeout,omitempty"`
	Metadata        Metadata       `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewSession creates an open session with defaults applied.
func NewSession(topic string, participants []string, maxTurns int) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             NewID(),
		Topic:          topic,
		Participants:   dedupe(participants),
		MaxTurns:       maxTurns,
		Status:         StatusOpen,
		Phase:          PhaseOpening,
		RoutingMode:    RoutingRoundRobin,
		ResolutionMode: ResolutionPropose,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HasHuman reports whether the human participant takes part in the session.
func (s *Session) HasHuman() bool { return slices.Contains(s.Participants, UserActorID) }

// Agents returns the non-human participants in list order.
func (s *Session) Agents() []string {
	out := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p != UserActorID {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = slices.Clone(s.Participants)
	c.Metadata = s.Metadata.Clone()
	return &c
}

// CloneFresh returns a new session with the same settings and participants
// but a new identity and no turn, summary or resolution state.
func (s *Session) CloneFresh() *Session {
	c := NewSession(s.Topic, s.Participants, s.MaxTurns)
	c.RoutingMode = s.RoutingMode
	c.ResolutionMode = s.ResolutionMode
	c.UserWaitTimeout = s.UserWaitTimeout
	c.Metadata.Attachments = slices.Clone(s.Metadata.Attachments)
	return c
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
