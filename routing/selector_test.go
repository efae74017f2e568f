package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
)

func teamProfiles() map[string]core.Profile {
	return map[string]core.Profile{
		"a": {ID: "a", Name: "Ava", Role: "Product Manager", Persona: "Owns the roadmap and customer priorities.", Skills: []string{"prioritization"}},
		"b": {ID: "b", Name: "Ben", Role: "Software Engineer", Persona: "Builds backend services.", Skills: []string{"go", "databases", "architecture"}},
		"c": {ID: "c", Name: "Cleo", Role: "Marketing Lead", Persona: "Runs campaigns.", Skills: []string{"branding", "campaigns"}},
		"d": {ID: "d", Name: "Dana", Role: "Legal Counsel", Persona: "Keeps the company out of trouble.", Skills: []string{"contract review"}, Domains: []string{"compliance", "liability", "contracts"}},
	}
}

func smartSession(tracking core.TurnTracking) *core.Session {
	s := core.NewSession("Launch plan", []string{"a", "b", "c", "d"}, 10)
	s.RoutingMode = core.RoutingSmart
	s.Metadata.TurnTracking = tracking
	return s
}

func userSays(content string) []core.Message {
	return []core.Message{core.NewMessage("s", core.UserActorID, content, 1)}
}

func TestRoundRobin_SlotModN(t *testing.T) {
	s := core.NewSession("t", []string{"A", "B", "C"}, 30)
	for slot := 0; slot < 12; slot++ {
		d := SelectNextSpeaker(s, userSays("legal contract pricing"), slot, teamProfiles())
		assert.Equal(t, s.Participants[slot%3], d.ActorID, "slot %d", slot)
	}
}

func TestRoundRobin_HumanTakesItsSlot(t *testing.T) {
	s := core.NewSession("t", []string{"a", core.UserActorID}, 4)
	d := SelectNextSpeaker(s, nil, 1, nil)
	assert.Equal(t, core.UserActorID, d.ActorID)
	assert.True(t, ShouldWaitForUser(d))
}

func TestSmart_StrongRoleMatchWins(t *testing.T) {
	s := smartSession(core.TurnTracking{{ActorID: "a"}, {ActorID: "b"}, {ActorID: "c"}, {ActorID: "d", LastSpokeTurn: 9}})
	d := SelectNextSpeaker(s, userSays("We need a legal review of the contract liability clauses and compliance"), 0, teamProfiles())
	require.Equal(t, "d", d.ActorID)
	assert.Greater(t, d.Scores["d"], 1.0)
	assert.Zero(t, d.Scores["a"])
	assert.Contains(t, d.Reasoning, "best keyword match d=")
}

func TestSmart_GenericMessageFallsBackToLeastRecent(t *testing.T) {
	tracking := core.TurnTracking{
		{ActorID: "a", LastSpokeTurn: 2},
		{ActorID: "b", LastSpokeTurn: 1},
		{ActorID: "c", LastSpokeTurn: 3},
		{ActorID: "d", LastSpokeTurn: 4},
	}
	s := smartSession(tracking)
	d := SelectNextSpeaker(s, userSays("Sounds good"), 4, teamProfiles())
	assert.Equal(t, "b", d.ActorID)
	assert.Len(t, d.Scores, 4)
	assert.Contains(t, d.Reasoning, "least recent speaker b")
}

func TestSmart_TieBreaksByLeastRecentThenListOrder(t *testing.T) {
	profiles := map[string]core.Profile{
		"a": {ID: "a", Role: "Designer"},
		"b": {ID: "b", Role: "Designer"},
		"c": {ID: "c", Role: "Designer"},
	}
	s := core.NewSession("t", []string{"a", "b", "c"}, 5)
	s.RoutingMode = core.RoutingSmart
	s.Metadata.TurnTracking = core.TurnTracking{{ActorID: "a", LastSpokeTurn: 3}, {ActorID: "b"}, {ActorID: "c"}}

	d := SelectNextSpeaker(s, userSays("designer input please"), 3, profiles)
	assert.Equal(t, "b", d.ActorID)
}

func TestSmart_LastAuthorStepsAsideAmongStrongMatches(t *testing.T) {
	s := smartSession(nil)
	history := []core.Message{core.NewMessage("s", "d", "Legal review of the backend architecture and databases", 1)}
	d := SelectNextSpeaker(s, history, 1, teamProfiles())
	assert.Equal(t, "b", d.ActorID)
	assert.Greater(t, d.Scores["d"], d.Scores["b"])
	assert.Greater(t, d.Scores["b"], 1.0)
}

func TestSmart_GenericMessageKeepsEveryAgentEligible(t *testing.T) {
	s := smartSession(nil)
	history := []core.Message{core.NewMessage("s", "a", "Sounds good", 1)}
	d := SelectNextSpeaker(s, history, 1, teamProfiles())
	assert.Len(t, d.Scores, 4)
	assert.Equal(t, "a", d.ActorID)
	assert.Contains(t, d.Reasoning, "least recent speaker a")
}

func TestSmart_UsesTopicWithoutHistory(t *testing.T) {
	s := smartSession(nil)
	s.Topic = "Backend architecture and databases"
	d := SelectNextSpeaker(s, nil, 0, teamProfiles())
	assert.Equal(t, "b", d.ActorID)
}

func TestSmart_MentionBonus(t *testing.T) {
	tracking := core.TurnTracking{
		{ActorID: "a", LastSpokeTurn: 1},
		{ActorID: "b", LastSpokeTurn: 2},
		{ActorID: "c", LastSpokeTurn: 1, LastMentionedTurn: 2},
		{ActorID: "d", LastSpokeTurn: 1},
	}
	s := smartSession(tracking)
	d := SelectNextSpeaker(s, userSays("Sounds good"), 2, teamProfiles())
	assert.Equal(t, "c", d.ActorID)
	assert.Equal(t, 2.0, d.Scores["c"])
}

func TestSmart_NeverPicksHumanWithoutHand(t *testing.T) {
	s := core.NewSession("user research", []string{core.UserActorID, "a"}, 5)
	s.RoutingMode = core.RoutingSmart
	d := SelectNextSpeaker(s, nil, 0, teamProfiles())
	assert.Equal(t, "a", d.ActorID)
}

func TestRaisedHandOverride(t *testing.T) {
	s := core.NewSession("t", []string{"a", "b", core.UserActorID}, 5)
	s.RoutingMode = core.RoutingSmart
	s.Metadata.RaisedHand = true

	d := SelectNextSpeaker(s, nil, 0, teamProfiles())
	assert.Equal(t, core.UserActorID, d.ActorID)
	assert.True(t, d.HandLowered)
	assert.True(t, ShouldWaitForUser(d))

	s.RoutingMode = core.RoutingRoundRobin
	d = SelectNextSpeaker(s, nil, 0, teamProfiles())
	assert.Equal(t, "a", d.ActorID)
	assert.False(t, d.HandLowered)
}

func TestSelectNextSpeaker_NoParticipants(t *testing.T) {
	s := core.NewSession("t", nil, 3)
	d := SelectNextSpeaker(s, nil, 0, nil)
	assert.Empty(t, d.ActorID)
	assert.False(t, ShouldWaitForUser(d))
}

func TestDecision_Ranked(t *testing.T) {
	d := Decision{Scores: map[string]float64{"a": 1, "b": 3, "c": 1}}
	assert.Equal(t, []string{"b", "a", "c"}, d.Ranked())
}

func TestNextInterjection(t *testing.T) {
	s := core.NewSession("t", []string{"a"}, 3)
	s.TurnCount = 2
	s.Metadata.InterjectionSeq = 4
	turn, seq := NextInterjection(s)
	assert.Equal(t, 2, turn)
	assert.Equal(t, 5, seq)
}
