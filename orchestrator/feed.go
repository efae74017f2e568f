package orchestrator

import (
	"time"

	"github.com/hupe1980/roundtable/core"
)

// State is the state of a session's orchestration loop.
type State string

const (
	StateIdle           State = "idle"
	StateRunning        State = "running"
	StatePaused         State = "paused"
	StateWaitingForUser State = "waiting_for_user"
	StateCompleted      State = "completed"
	StateCancelled      State = "cancelled"
)

// EventType names a live feed event.
type EventType string

const (
	EventLoopState     EventType = "loop_state"
	EventTurnStarted   EventType = "turn_started"
	EventDelta         EventType = "delta"
	EventMessage       EventType = "message"
	EventTurnSkipped   EventType = "turn_skipped"
	EventStreamCleared EventType = "stream_cleared"
	EventSummary       EventType = "summary"
	EventResolution    EventType = "resolution"
	EventClosed        EventType = "closed"
)

// Event is one entry of the live feed of a session.
type Event struct {
	Type       EventType               `json:"type"`
	SessionID  string                  `json:"session_id"`
	State      State                   `json:"state,omitempty"`
	TurnNumber int                     `json:"turn_number,omitempty"`
	ActorID    string                  `json:"actor_id,omitempty"`
	Reasoning  string                  `json:"reasoning,omitempty"`
	Text       string                  `json:"text,omitempty"`
	Reason     string                  `json:"reason,omitempty"`
	Message    *core.Message           `json:"message,omitempty"`
	Summary    *core.Summary           `json:"summary,omitempty"`
	Resolution *core.ResolutionPackage `json:"resolution,omitempty"`
	At         time.Time               `json:"at"`
}

// Skip reasons reported on turn_skipped events.
const (
	SkipCompletionError = "completion_error"
	SkipEmptyReply      = "empty_reply"
	SkipUserTimeout     = "user_timeout"
	SkipNoSpeaker       = "no_speaker"
)

func (o *Orchestrator) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	o.feed.Publish(ev)
}
