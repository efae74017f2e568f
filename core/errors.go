package core

import "errors"

// Sentinel errors shared across packages. Wrap with fmt.Errorf("...: %w") and
// match with errors.Is.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionClosed      = errors.New("session is closed")
	ErrLoopRunning        = errors.New("orchestration loop already running for session")
	ErrLoopNotRunning     = errors.New("no orchestration loop running for session")
	ErrNotWaitingForUser  = errors.New("loop is not waiting for user input")
	ErrItemNotFound       = errors.New("resolution item not found")
	ErrNoPackage          = errors.New("session has no resolution package")
	ErrInvalidSession     = errors.New("invalid session")
	ErrDuplicateSessionID = errors.New("session already exists")
)
