package roundtable

import (
	"strings"

	"github.com/hupe1980/roundtable/completion"
)

var demoLines = []string{
	"I'd start from what the customer is actually paying for today.",
	"Agreed, and we should test that assumption with two accounts first.",
	"Let's keep the rollout small and measure churn before committing.",
	"I can draft the proposal once we settle the open questions.",
}

// DemoReply scripts plausible replies for the mock backend: conversational
// lines for agent turns, a fenced summary for the summary request and one
// follow-up item for the resolution request.
func DemoReply(req completion.Request) completion.MockReply {
	switch {
	case strings.HasSuffix(req.IdempotencyKey, ":summary"):
		return completion.MockReply{Text: "```json\n" +
			`{"overview":"The group agreed to validate the approach with a small pilot.",` +
			`"key_points":["Start from current customer value","Pilot with two accounts"],` +
			`"decisions":["Run a two-account pilot"],` +
			`"open_questions":["Which accounts join the pilot?"]}` +
			"\n```"}
	case strings.HasSuffix(req.IdempotencyKey, ":resolution"):
		return completion.MockReply{Text: "```json\n" +
			`{"items":[{"type":"follow_up","payload":{"subject":"Pick pilot accounts","owner":"team"},` +
			`"source_excerpt":"test that assumption with two accounts first"}]}` +
			"\n```"}
	default:
		return completion.MockReply{Text: demoLines[len(req.Messages)%len(demoLines)]}
	}
}
