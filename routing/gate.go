package routing

import "github.com/hupe1980/roundtable/core"

// ShouldWaitForUser reports whether the loop must block for human input.
func ShouldWaitForUser(d Decision) bool { return d.ActorID == core.UserActorID }

// NextInterjection returns the numbering for an unscheduled human message:
// the official turn it follows and the next per-session interjection
// sequence. Interjections never consume official turn numbers.
func NextInterjection(sess *core.Session) (turnNumber, seq int) {
	return sess.TurnCount, sess.Metadata.InterjectionSeq + 1
}
