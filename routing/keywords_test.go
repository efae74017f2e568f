package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/roundtable/core"
)

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"pric", "contract", "review"}, Keywords("Pricing of the contracts, and the contract review!"))
	assert.Empty(t, Keywords("Sounds good"))
	assert.Empty(t, Keywords("a I"))
}

func TestStopwordsAreLoaded(t *testing.T) {
	assert.Contains(t, stopwords, "the")
	assert.Contains(t, stopwords, "let's")
	assert.NotContains(t, stopwords, "")
	assert.Len(t, wordSet("a b\n\tb c"), 3)
}

func TestDetectMentions(t *testing.T) {
	profiles := teamProfiles()
	participants := []string{"a", "b", "c", "d", core.UserActorID}

	got := DetectMentions("Thanks @b, and Dana should weigh in.", "a", participants, profiles)
	assert.Equal(t, []string{"b", "d"}, got)

	assert.Empty(t, DetectMentions("a plan for b", "c", participants, profiles))
	assert.Empty(t, DetectMentions("I, Ava, agree.", "a", participants, profiles))
	assert.Equal(t, []string{core.UserActorID}, DetectMentions("What does the user think?", "a", participants, profiles))
}
