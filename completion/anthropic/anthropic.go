// Package anthropic provides a completion.Backend over the Anthropic Messages
// streaming API. Text deltas are accumulated and emitted as snapshots, so the
// backend reports cumulative delivery.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/roundtable/completion"
)

// Options configures the Anthropic backend (model id, temperature, max
// tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Backend streams messages from Anthropic.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1024,
	}
}

// NewBackend creates a backend using the official client. Without an APIKey
// option the client reads ANTHROPIC_API_KEY.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Backend{client: &client, opts: opts}
}

// NewBackendFromClient creates a backend from an existing client.
func NewBackendFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// Name implements completion.Backend.
func (b *Backend) Name() string { return "anthropic:" + string(b.opts.Model) }

// Delivery implements completion.Backend.
func (b *Backend) Delivery() completion.Delivery { return completion.Cumulative }

// Generate implements completion.Backend.
func (b *Backend) Generate(ctx context.Context, req completion.Request) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		stream := b.client.Messages.NewStreaming(ctx, b.buildParams(req))
		defer stream.Close()

		var text strings.Builder
		for stream.Next() {
			event := stream.Current()
			ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			text.WriteString(delta.Text)
			select {
			case out <- text.String():
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()
	return out, errCh
}

// buildParams maps the request onto the Messages API. Consecutive messages of
// the same role are joined because the API requires alternating roles, and a
// leading assistant turn is preceded by a neutral user turn.
func (b *Backend) buildParams(req completion.Request) anthropic.MessageNewParams {
	maxTokens := b.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       b.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(b.opts.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

type turn struct {
	role completion.Role
	text []string
}

func buildMessages(msgs []completion.Message) []anthropic.MessageParam {
	var turns []turn
	for _, m := range msgs {
		role := m.Role
		if role != completion.RoleAssistant {
			role = completion.RoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text = append(turns[n-1].text, m.Content)
			continue
		}
		turns = append(turns, turn{role: role, text: []string{m.Content}})
	}
	if len(turns) == 0 || turns[0].role == completion.RoleAssistant {
		turns = append([]turn{{role: completion.RoleUser, text: []string{"Continue the conversation."}}}, turns...)
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(strings.Join(t.text, "\n\n"))
		if t.role == completion.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
