package turn

import (
	"math"

	"github.com/hupe1980/roundtable/core"
)

const (
	openingShare = 0.15
	wrapUpShare  = 0.20
)

// DetectPhase maps a 1-based turn number to a conversational phase.
//
// The first ceil(15%) of turns (at least one) are the opening and the last
// ceil(20%) (at least one) are the wrap-up; the rest is discussion. Phase only
// steers prompt guidance.
func DetectPhase(turnNumber, maxTurns int) core.Phase {
	if maxTurns <= 0 {
		return core.PhaseOpening
	}
	if turnNumber < 1 {
		turnNumber = 1
	}

	opening := max(1, int(math.Ceil(float64(maxTurns)*openingShare)))
	wrapUp := max(1, int(math.Ceil(float64(maxTurns)*wrapUpShare)))

	if turnNumber <= opening {
		return core.PhaseOpening
	}
	if turnNumber > maxTurns-wrapUp {
		return core.PhaseWrapUp
	}
	return core.PhaseDiscussion
}
