package core

import "context"

// UpdateFunc mutates a session copy inside a store's read-modify-write.
// Returning an error aborts the update and leaves the stored session unchanged.
type UpdateFunc func(s *Session) error

// SessionStore persists sessions and their message history.
//
// Contract:
//   - Get/List return copies; callers may mutate them freely
//   - Update is atomic per session: fn sees the latest committed state and its
//     changes commit only if it returns nil
//   - AppendTurn appends m and applies fn as one atomic step: either both
//     commit or neither does
//   - ListMessages returns messages in append order
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error)
	AppendMessage(ctx context.Context, m Message) error
	AppendTurn(ctx context.Context, m Message, fn UpdateFunc) (*Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
}

// Notifier delivers best-effort side-channel announcements.
type Notifier interface {
	Send(ctx context.Context, channel, message string) error
}
