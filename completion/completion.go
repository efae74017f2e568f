package completion

import (
	"context"
	"errors"
)

// Role is the author role of a prompt message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the prompt history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request.
type Request struct {
	// SessionKey groups requests of one conversation.
	SessionKey string `json:"session_key"`
	// IdempotencyKey makes retried sends resolve to the same run.
	IdempotencyKey string `json:"idempotency_key"`
	// Actor is the participant the completion speaks for (informational).
	Actor    string    `json:"actor,omitempty"`
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
	// MaxTokens overrides the backend default when > 0.
	MaxTokens int64 `json:"max_tokens,omitempty"`
}

// Ack acknowledges an accepted request.
type Ack struct {
	RunID string `json:"run_id"`
}

// State is the kind of a run event.
type State string

const (
	StateDelta   State = "delta"
	StateFinal   State = "final"
	StateError   State = "error"
	StateAborted State = "aborted"
)

// Terminal reports whether no further events follow for the run.
func (s State) Terminal() bool { return s != StateDelta }

// Event is one message of the shared event stream.
type Event struct {
	RunID        string `json:"run_id"`
	State        State  `json:"state"`
	Message      string `json:"message,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Service is the Completion Service contract. The cancel function returned by
// Subscribe must be safe to call more than once.
type Service interface {
	Send(ctx context.Context, req Request) (Ack, error)
	Subscribe() (<-chan Event, func())
}

// Aborter is implemented by services that can stop a run early.
type Aborter interface {
	Abort(runID string) bool
}

// Delivery describes how a backend's fragments relate to each other.
type Delivery int

const (
	// Incremental fragments carry only the new tail.
	Incremental Delivery = iota
	// Cumulative fragments carry the full text so far.
	Cumulative
)

// String returns the delivery style name.
func (d Delivery) String() string {
	if d == Cumulative {
		return "cumulative"
	}
	return "incremental"
}

// Backend streams raw text fragments for a request. Both channels are closed
// when generation ends; at most one error is sent.
type Backend interface {
	Name() string
	Delivery() Delivery
	Generate(ctx context.Context, req Request) (<-chan string, <-chan error)
}

var (
	// ErrRunFailed wraps the error message of an error event.
	ErrRunFailed = errors.New("completion run failed")
	// ErrRunAborted is returned when a run ends with an aborted event.
	ErrRunAborted = errors.New("completion run aborted")
	// ErrStreamClosed is returned when the event stream ends without a terminal event.
	ErrStreamClosed = errors.New("completion event stream closed")
	// ErrGatewayClosed is returned by Send after Close.
	ErrGatewayClosed = errors.New("completion gateway closed")
)
