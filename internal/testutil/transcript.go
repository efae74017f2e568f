package testutil

import (
	"fmt"

	"github.com/hupe1980/roundtable/core"
)

// Transcript builds official turns numbered from 1 out of actor/content
// pairs:
//
//	history := Transcript("s1", "a", "Let's go tiered.", "b", "Agreed.")
func Transcript(sessionID string, actorContent ...string) []core.Message {
	if len(actorContent)%2 != 0 {
		panic(fmt.Sprintf("testutil: Transcript needs actor/content pairs, got %d values", len(actorContent)))
	}
	out := make([]core.Message, 0, len(actorContent)/2)
	for i := 0; i < len(actorContent); i += 2 {
		out = append(out, core.NewMessage(sessionID, actorContent[i], actorContent[i+1], i/2+1))
	}
	return out
}

// Interjection builds a human message added outside the human's turn.
func Interjection(sessionID, content string, turnNumber, seq int) core.Message {
	m := core.NewMessage(sessionID, core.UserActorID, content, turnNumber)
	m.Interjection = true
	m.InterjectionSeq = seq
	return m
}

// NewProfile builds an agent profile.
func NewProfile(id, name, role string, skills ...string) core.Profile {
	return core.Profile{ID: id, Name: name, Role: role, Skills: skills}
}

// Profiles indexes profiles by ID.
func Profiles(ps ...core.Profile) map[string]core.Profile {
	out := make(map[string]core.Profile, len(ps))
	for _, p := range ps {
		out[p.ID] = p
	}
	return out
}
