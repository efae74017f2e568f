// Package summary produces the structured end-of-session summary.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/roundtable/completion"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/extract"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/prompt"
)

// ErrEmptySummary is returned when the completion produced no text at all.
var ErrEmptySummary = errors.New("summary completion returned no text")

// Options configures a Generator.
type Options struct {
	// Timeout bounds the whole summary request.
	Timeout   time.Duration
	MaxTokens int64
	Logger    logging.Logger
}

// Generator issues one summary request per closed session.
type Generator struct {
	svc    completion.Service
	opts   Options
	logger logging.Logger
}

// New creates a Generator using svc for completions.
func New(svc completion.Service, optFns ...func(o *Options)) *Generator {
	opts := Options{
		Timeout:   90 * time.Second,
		MaxTokens: 800,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{svc: svc, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

const instructions = `You are the moderator of a finished roundtable discussion.
Summarize the conversation for someone who did not attend.
Reply with a single fenced JSON block and nothing else:
` + "```json" + `
{"overview": "...", "key_points": ["..."], "decisions": ["..."], "open_questions": ["..."]}
` + "```"

type payload struct {
	Overview      string   `json:"overview"`
	KeyPoints     []string `json:"key_points"`
	Decisions     []string `json:"decisions"`
	OpenQuestions []string `json:"open_questions"`
}

// Generate requests the summary of history. When the reply carries no usable
// JSON block the raw reply becomes the overview.
func (g *Generator) Generate(ctx context.Context, sess *core.Session, history []core.Message, profiles map[string]core.Profile) (*core.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	req := completion.Request{
		SessionKey:     sess.ID,
		IdempotencyKey: sess.ID + ":summary",
		Actor:          core.SystemActorID,
		System:         instructions,
		Messages: []completion.Message{{
			Role:    completion.RoleUser,
			Content: fmt.Sprintf("Topic: %s\n\nTranscript:\n%s", sess.Topic, prompt.Transcript(history, profiles)),
		}},
		MaxTokens: g.opts.MaxTokens,
	}

	res, err := completion.Collect(ctx, g.svc, req, nil)
	if err != nil {
		return nil, fmt.Errorf("summary completion: %w", err)
	}
	return Parse(res.Text, time.Now().UTC())
}

// Parse turns a summary reply into a Summary.
func Parse(text string, now time.Time) (*core.Summary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptySummary
	}
	if block, ok := extract.FencedJSON(text); ok {
		var p payload
		if err := json.Unmarshal([]byte(block), &p); err == nil && strings.TrimSpace(p.Overview) != "" {
			return &core.Summary{
				Overview:      strings.TrimSpace(p.Overview),
				KeyPoints:     p.KeyPoints,
				Decisions:     p.Decisions,
				OpenQuestions: p.OpenQuestions,
				GeneratedAt:   now,
			}, nil
		}
	}
	return &core.Summary{Overview: text, GeneratedAt: now}, nil
}
