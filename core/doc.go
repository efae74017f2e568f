// Package core provides the foundational domain types and interfaces used by
// Roundtable. It defines:
//
//   - Sessions (bounded multi-party conversations with routing and phase state)
//   - Messages (one immutable contribution per turn, plus human interjections)
//   - Profiles (the role/persona/skills corpus of each agent participant)
//   - Turn tracking entries (per-participant participation counters)
//   - Resolution packages (typed follow-up work items awaiting approval)
//   - Store and notifier contracts consumed by the orchestrator
//
// The package intentionally keeps implementation concerns (persistence,
// completion backends, scheduling) out of scope, exposing small interfaces to
// enable custom backends.
package core
