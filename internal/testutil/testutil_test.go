package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/roundtable/core"
)

func TestSessionBuilder(t *testing.T) {
	b := NewSessionBuilder("pricing").ID("s1").Participants("a", core.UserActorID).MaxTurns(4).Routing(core.RoutingSmart)
	s1 := b.Build()
	s2 := b.Build()

	assert.Equal(t, "s1", s1.ID)
	assert.Equal(t, core.StatusOpen, s1.Status)
	assert.True(t, s1.HasHuman())
	assert.Equal(t, core.RoutingSmart, s1.RoutingMode)

	s1.Participants[0] = "mutated"
	assert.Equal(t, "a", s2.Participants[0])
}

func TestTranscript(t *testing.T) {
	msgs := Transcript("s1", "a", "one", "b", "two")
	assert.Len(t, msgs, 2)
	assert.Equal(t, 2, msgs[1].TurnNumber)
	assert.Equal(t, core.SenderAgent, msgs[1].SenderType)

	assert.Panics(t, func() { Transcript("s1", "a") })

	inter := Interjection("s1", "quick one", 2, 1)
	assert.True(t, inter.Interjection)
	assert.Equal(t, core.UserActorID, inter.ActorID)
}
