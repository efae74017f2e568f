package routing

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/hupe1980/roundtable/core"
)

// Decision is the outcome of a speaker selection.
type Decision struct {
	// ActorID is empty when nobody can be selected.
	ActorID   string             `json:"actor_id"`
	Reasoning string             `json:"reasoning"`
	Scores    map[string]float64 `json:"scores,omitempty"`
	// HandLowered reports that the raised hand was consumed by this decision;
	// the caller must clear the flag on the session.
	HandLowered bool `json:"hand_lowered,omitempty"`
}

// Selector picks the next speaker for a slot.
type Selector interface {
	Select(sess *core.Session, history []core.Message, slot int, profiles map[string]core.Profile) Decision
}

// RoundRobin selects participants[slot mod N].
type RoundRobin struct{}

// Select implements Selector.
func (RoundRobin) Select(sess *core.Session, _ []core.Message, slot int, _ map[string]core.Profile) Decision {
	n := len(sess.Participants)
	if n == 0 {
		return Decision{Reasoning: "no participants"}
	}
	idx := ((slot % n) + n) % n
	return Decision{
		ActorID:   sess.Participants[idx],
		Reasoning: fmt.Sprintf("round-robin slot %d of %d", idx+1, n),
	}
}

// SmartOptions tune keyword scoring.
type SmartOptions struct {
	RoleWeight     float64
	CorpusWeight   float64
	MentionBonus   float64
	RelevanceFloor float64
}

// Smart scores agents against the latest message.
type Smart struct {
	opts SmartOptions
}

// NewSmart creates a smart selector with default weights (role 3, corpus 1,
// mention bonus 2, floor 1).
func NewSmart(optFns ...func(o *SmartOptions)) *Smart {
	opts := SmartOptions{RoleWeight: 3, CorpusWeight: 1, MentionBonus: 2, RelevanceFloor: 1}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Smart{opts: opts}
}

// Select implements Selector. Keywords come from the latest message, or the
// topic when there is no history. When more than one agent clears the
// relevance floor, the author of the latest message drops out of that set so
// a strong match hands the floor to someone else. The floor fallback keeps
// every agent eligible. The human is never picked here; it only speaks in
// smart mode through the raised-hand override.
func (s *Smart) Select(sess *core.Session, history []core.Message, _ int, profiles map[string]core.Profile) Decision {
	candidates := sess.Agents()
	if len(candidates) == 0 {
		return Decision{Reasoning: "no eligible agents"}
	}
	source := sess.Topic
	lastAuthor := ""
	if len(history) > 0 {
		last := history[len(history)-1]
		source = last.Content
		lastAuthor = last.ActorID
	}

	keywords := Keywords(source)
	scores := make(map[string]float64, len(candidates))
	var above []string
	for _, id := range candidates {
		scores[id] = s.score(id, keywords, profiles[id], sess.Metadata.TurnTracking)
		if scores[id] > s.opts.RelevanceFloor {
			above = append(above, id)
		}
	}
	if len(above) > 1 && lastAuthor != "" {
		above = slices.DeleteFunc(above, func(id string) bool { return id == lastAuthor })
	}

	if len(above) == 0 {
		chosen := leastRecent(candidates, sess.Metadata.TurnTracking)
		return Decision{
			ActorID:   chosen,
			Reasoning: fmt.Sprintf("no score above %.1f, least recent speaker %s (%s)", s.opts.RelevanceFloor, chosen, formatScores(candidates, scores)),
			Scores:    scores,
		}
	}

	best := 0.0
	for _, id := range above {
		best = max(best, scores[id])
	}
	var pool []string
	for _, id := range above {
		if scores[id] == best {
			pool = append(pool, id)
		}
	}
	chosen := leastRecent(pool, sess.Metadata.TurnTracking)
	return Decision{
		ActorID:   chosen,
		Reasoning: fmt.Sprintf("best keyword match %s=%.1f (%s)", chosen, best, formatScores(candidates, scores)),
		Scores:    scores,
	}
}

func (s *Smart) score(id string, keywords []string, p core.Profile, tracking core.TurnTracking) float64 {
	role := tokenSet(p.Role)
	corpus := tokenSet(append([]string{p.Name, p.Persona, id}, append(p.Skills, p.Domains...)...)...)
	var score float64
	for _, k := range keywords {
		if _, ok := role[k]; ok {
			score += s.opts.RoleWeight
			continue
		}
		if _, ok := corpus[k]; ok {
			score += s.opts.CorpusWeight
		}
	}
	if e, ok := tracking.Lookup(id); ok && e.LastMentionedTurn > e.LastSpokeTurn {
		score += s.opts.MentionBonus
	}
	return score
}

// leastRecent returns the candidate with the smallest lastSpokeTurn, keeping
// list order among equals.
func leastRecent(ids []string, tracking core.TurnTracking) string {
	chosen := ""
	chosenTurn := 0
	for _, id := range ids {
		turn := 0
		if e, ok := tracking.Lookup(id); ok {
			turn = e.LastSpokeTurn
		}
		if chosen == "" || turn < chosenTurn {
			chosen, chosenTurn = id, turn
		}
	}
	return chosen
}

func formatScores(order []string, scores map[string]float64) string {
	parts := make([]string, 0, len(order))
	for _, id := range order {
		parts = append(parts, fmt.Sprintf("%s=%.1f", id, scores[id]))
	}
	return strings.Join(parts, " ")
}

// ForMode returns the selector for a routing mode (round-robin for unknown modes).
func ForMode(mode core.RoutingMode) Selector {
	if mode == core.RoutingSmart {
		return NewSmart()
	}
	return RoundRobin{}
}

// SelectNextSpeaker applies the raised-hand override, then the session's
// routing strategy. slot is the zero-based scheduling slot; with no skipped
// slots it equals the number of completed turns.
func SelectNextSpeaker(sess *core.Session, history []core.Message, slot int, profiles map[string]core.Profile) Decision {
	if len(sess.Participants) == 0 {
		return Decision{Reasoning: "no participants"}
	}
	if sess.RoutingMode == core.RoutingSmart && sess.Metadata.RaisedHand && sess.HasHuman() {
		return Decision{ActorID: core.UserActorID, Reasoning: "user raised hand", HandLowered: true}
	}
	return ForMode(sess.RoutingMode).Select(sess, conversational(history), slot, profiles)
}

// conversational drops system messages; interjections stay since they are
// often what the next speaker should answer.
func conversational(history []core.Message) []core.Message {
	out := make([]core.Message, 0, len(history))
	for _, m := range history {
		if m.SenderType != core.SenderSystem {
			out = append(out, m)
		}
	}
	return out
}

// Ranked returns candidate IDs ordered by descending score, for display.
func (d Decision) Ranked() []string {
	ids := make([]string, 0, len(d.Scores))
	for id := range d.Scores {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if d.Scores[ids[i]] != d.Scores[ids[j]] {
			return d.Scores[ids[i]] > d.Scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}
