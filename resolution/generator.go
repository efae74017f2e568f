package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/roundtable/completion"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/util"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/prompt"
)

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	Timeout   time.Duration
	MaxTokens int64
	Logger    logging.Logger
}

// Generator builds resolution packages from closed conversations.
type Generator struct {
	svc    completion.Service
	opts   GeneratorOptions
	logger logging.Logger
}

// NewGenerator creates a Generator using svc for the extraction request.
func NewGenerator(svc completion.Service, optFns ...func(o *GeneratorOptions)) *Generator {
	opts := GeneratorOptions{
		Timeout:   90 * time.Second,
		MaxTokens: 1500,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{svc: svc, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Generate extracts the resolution package of a session. Mode none returns a
// skipped package without calling the completion service. A reply without a
// usable block yields an empty package marked malformed; only a failed
// completion request is returned as an error.
func (g *Generator) Generate(ctx context.Context, sess *core.Session, history []core.Message, summary *core.Summary, profiles map[string]core.Profile) (*core.ResolutionPackage, error) {
	mode := sess.ResolutionMode
	if !mode.Valid() {
		mode = core.ResolutionPropose
	}
	pkg := &core.ResolutionPackage{
		Items:       []core.ResolutionItem{},
		Mode:        mode,
		GeneratedAt: time.Now().UTC(),
	}
	if mode == core.ResolutionNone {
		pkg.Extraction = core.ExtractionSkipped
		return pkg, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	req := completion.Request{
		SessionKey:     sess.ID,
		IdempotencyKey: sess.ID + ":resolution",
		Actor:          core.SystemActorID,
		System:         extractionInstructions(),
		Messages: []completion.Message{{
			Role:    completion.RoleUser,
			Content: extractionInput(sess, history, summary, profiles),
		}},
		MaxTokens: g.opts.MaxTokens,
	}
	res, err := completion.Collect(ctx, g.svc, req, nil)
	if err != nil {
		return nil, fmt.Errorf("resolution completion: %w", err)
	}

	items, err := Extract(res.Text)
	switch {
	case err == nil && len(items) == 0:
		pkg.Extraction = core.ExtractionEmpty
	case err == nil:
		pkg.Extraction = core.ExtractionOK
		pkg.Items = ApplyPolicy(items, mode)
	case errors.Is(err, ErrNoExtraction), errors.Is(err, ErrMalformedExtraction):
		g.logger.Warn("Resolution extraction unusable", "session_id", sess.ID, "error", err)
		pkg.Extraction = core.ExtractionMalformed
	default:
		return nil, err
	}
	return pkg, nil
}

func extractionInstructions() string {
	var b strings.Builder
	b.WriteString("You extract concrete follow-up work items from a finished discussion.\n")
	b.WriteString("Only include items the participants actually agreed on. Quote the sentence that motivates each item in source_excerpt.\n")
	b.WriteString("Reply with exactly one fenced JSON block of the form:\n")
	b.WriteString("```json\n{\"items\": [{\"type\": \"mission\", \"payload\": {\"title\": \"...\"}, \"source_excerpt\": \"...\"}]}\n```\n")
	b.WriteString("If nothing was agreed, reply with {\"items\": []}.\n\n")
	b.WriteString("Allowed types and their payload schemas:\n")
	for _, t := range core.ItemTypes {
		schema, err := json.Marshal(util.CreateSchema(payloadPrototype(t)))
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", t, schema)
	}
	return b.String()
}

func payloadPrototype(t core.ItemType) core.Payload {
	switch t {
	case core.ItemMission:
		return core.MissionPayload{}
	case core.ItemProject:
		return core.ProjectPayload{}
	case core.ItemDocument:
		return core.DocumentPayload{}
	case core.ItemCRM:
		return core.CRMPayload{}
	case core.ItemFollowUp:
		return core.FollowUpPayload{}
	case core.ItemEvent:
		return core.EventPayload{}
	default:
		return core.QuotePayload{}
	}
}

func extractionInput(sess *core.Session, history []core.Message, summary *core.Summary, profiles map[string]core.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", sess.Topic)
	if summary != nil {
		fmt.Fprintf(&b, "\nSummary: %s\n", summary.Overview)
		for _, d := range summary.Decisions {
			fmt.Fprintf(&b, "- decision: %s\n", d)
		}
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(prompt.Transcript(history, profiles))
	return b.String()
}
