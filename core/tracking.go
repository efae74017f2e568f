package core

// TurnTrackingEntry holds per-participant participation counters.
// Turn numbers are 1-based; zero means "never".
type TurnTrackingEntry struct {
	ActorID           string `json:"actor_id"`
	TurnCount         int    `json:"turn_count"`
	LastSpokeTurn     int    `json:"last_spoke_turn"`
	LastMentionedTurn int    `json:"last_mentioned_turn"`
}

// TurnTracking is the ordered set of entries, one per participant.
type TurnTracking []TurnTrackingEntry

// Clone returns an independent copy.
func (t TurnTracking) Clone() TurnTracking {
	if t == nil {
		return nil
	}
	out := make(TurnTracking, len(t))
	copy(out, t)
	return out
}

// Lookup returns the entry for actorID.
func (t TurnTracking) Lookup(actorID string) (TurnTrackingEntry, bool) {
	for _, e := range t {
		if e.ActorID == actorID {
			return e, true
		}
	}
	return TurnTrackingEntry{}, false
}
