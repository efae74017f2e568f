package prompt

import "github.com/hupe1980/roundtable/core"

// Guidance returns the phase-specific instruction appended to the system prompt.
func Guidance(phase core.Phase) string {
	switch phase {
	case core.PhaseOpening:
		return "Opening phase: introduce your perspective on the topic briefly, state what you care about, and raise the questions you want the group to answer."
	case core.PhaseWrapUp:
		return "Wrap-up phase: converge. Summarize where you stand, name concrete next steps with owners, and flag anything still unresolved. Do not open new threads."
	default:
		return "Discussion phase: build on what others said, challenge weak points with specifics, and move the group toward decisions."
	}
}
