// Package orchestrator drives conversation sessions turn by turn.
//
// An Orchestrator owns a registry of running loops keyed by session ID and
// refuses to start a second loop for a session, so each session has exactly
// one writer of its turn count, status and phase. A loop repeatedly selects a
// speaker, assembles the prompt, streams the completion and persists the
// message, then finalizes the session with a summary and a resolution
// package.
//
// Failures degrade instead of aborting: a failed completion skips the turn, a
// timed-out turn keeps its partial text, an unanswered human turn is skipped,
// and a failed summary or resolution still closes the session. Cancellation
// leaves the session open at its current turn count so it can be resumed.
//
// Pause and the human wait block on channels and timers; nothing polls.
package orchestrator
