// Package routing chooses who speaks next in a session and decides when the
// orchestrator must wait for the human participant.
//
// Two strategies sit behind the Selector interface:
//
//   - RoundRobin picks participants[slot mod N], independent of content
//   - Smart scores agents by keyword overlap between the latest message and
//     each agent's profile (role weighs more than persona, skills and
//     domains), balancing ties toward whoever spoke least recently
//
// SelectNextSpeaker applies the raised-hand override before dispatching on
// the session's routing mode. All functions are pure; side effects such as
// lowering the hand are reported in the Decision for the caller to persist.
package routing
