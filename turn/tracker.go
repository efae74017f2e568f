package turn

import (
	"github.com/hupe1980/roundtable/core"
)

// Initialize returns one zeroed entry per participant, preserving order.
func Initialize(participants []string) core.TurnTracking {
	out := make(core.TurnTracking, 0, len(participants))
	for _, id := range participants {
		out = append(out, core.TurnTrackingEntry{ActorID: id})
	}
	return out
}

// Update records that actorID spoke on turnNumber. Unknown actors are a no-op.
func Update(tracking core.TurnTracking, actorID string, turnNumber int) core.TurnTracking {
	out := tracking.Clone()
	for i := range out {
		if out[i].ActorID == actorID {
			out[i].TurnCount++
			out[i].LastSpokeTurn = turnNumber
			break
		}
	}
	return out
}

// MarkMentioned records that actorID was mentioned on turnNumber without
// touching its turn count. Unknown actors are a no-op.
func MarkMentioned(tracking core.TurnTracking, actorID string, turnNumber int) core.TurnTracking {
	out := tracking.Clone()
	for i := range out {
		if out[i].ActorID == actorID {
			out[i].LastMentionedTurn = turnNumber
			break
		}
	}
	return out
}

// Rehydrate rebuilds tracking from persisted history. Interjections count as
// mentions only; official turns count as spoken turns.
func Rehydrate(participants []string, history []core.Message) core.TurnTracking {
	tracking := Initialize(participants)
	for _, m := range history {
		if !m.Interjection && m.SenderType != core.SenderSystem {
			tracking = Update(tracking, m.ActorID, m.TurnNumber)
		}
		for _, mentioned := range m.Mentions {
			tracking = MarkMentioned(tracking, mentioned, m.TurnNumber)
		}
	}
	return tracking
}

// Reconcile makes tracking cover exactly the given participants, keeping
// existing counters and zeroing new entries.
func Reconcile(tracking core.TurnTracking, participants []string) core.TurnTracking {
	out := make(core.TurnTracking, 0, len(participants))
	for _, id := range participants {
		if e, ok := tracking.Lookup(id); ok {
			out = append(out, e)
			continue
		}
		out = append(out, core.TurnTrackingEntry{ActorID: id})
	}
	return out
}
