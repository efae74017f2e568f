package orchestrator

import (
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/prompt"
	"github.com/hupe1980/roundtable/resolution"
	"github.com/hupe1980/roundtable/summary"
)

// Options configures an Orchestrator.
type Options struct {
	// TurnTimeout bounds one agent turn. A turn hitting it keeps the text
	// streamed so far (default 120s).
	TurnTimeout time.Duration
	// UserWaitTimeout bounds the wait for a scheduled human turn unless the
	// session sets its own (default 5m).
	UserWaitTimeout time.Duration
	// SummaryTimeout and ResolutionTimeout bound the finalization requests
	// (default 90s each). They are ignored when Summarizer or Resolver is set.
	SummaryTimeout    time.Duration
	ResolutionTimeout time.Duration
	// InterTurnDelay paces consecutive turns.
	InterTurnDelay time.Duration
	// MaxConsecutiveSkips ends the turn phase after that many skipped slots
	// in a row (default 6).
	MaxConsecutiveSkips int
	// HistoryWindow is the number of recent messages sent with each prompt.
	HistoryWindow int
	// MaxTokens caps each agent reply when > 0.
	MaxTokens int64

	Profiles  core.ProfileSource
	Context   prompt.ContextSource
	Notifier  core.Notifier
	// NotifyChannel is passed to the notifier on close (default "roundtable").
	NotifyChannel string

	Summarizer *summary.Generator
	Resolver   *resolution.Generator

	// FeedBuffer is the per-subscriber live feed buffer.
	FeedBuffer int
	Logger     logging.Logger
}

func defaultOptions() Options {
	return Options{
		TurnTimeout:         120 * time.Second,
		UserWaitTimeout:     5 * time.Minute,
		SummaryTimeout:      90 * time.Second,
		ResolutionTimeout:   90 * time.Second,
		InterTurnDelay:      500 * time.Millisecond,
		MaxConsecutiveSkips: 6,
		HistoryWindow:       20,
		NotifyChannel:       "roundtable",
		FeedBuffer:          256,
	}
}

// staticProfiles is the fallback profile source: every participant is known
// by its ID only.
type staticProfiles struct{}

func (staticProfiles) Profiles(ids []string) map[string]core.Profile {
	out := make(map[string]core.Profile, len(ids))
	for _, id := range ids {
		out[id] = core.Profile{ID: id}
	}
	return out
}
