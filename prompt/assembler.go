package prompt

import (
	"fmt"
	"strings"

	"github.com/hupe1980/roundtable/completion"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/util"
)

// ContextSource provides entity and attachment snippets for a session.
// core.MemoryStore satisfies it.
type ContextSource interface {
	Search(sessionID string, query string, limit int) ([]core.SearchResult, error)
}

// Options configure an Assembler.
type Options struct {
	// HistoryWindow is how many recent messages are sent (default 20).
	HistoryWindow int
	// ContextSnippets caps injected context snippets (default 5).
	ContextSnippets int
	// AttachmentRunes caps each attachment excerpt (default 2000).
	AttachmentRunes int
	// AttachmentBudget caps all attachment excerpts together (default 6000).
	AttachmentBudget int
	// MaxTokens is forwarded on the request when > 0.
	MaxTokens int64
}

// Assembler builds completion requests for agent turns.
type Assembler struct {
	source ContextSource
	opts   Options
}

// New creates an assembler. source may be nil.
func New(source ContextSource, optFns ...func(o *Options)) *Assembler {
	opts := Options{
		HistoryWindow:    20,
		ContextSnippets:  5,
		AttachmentRunes:  2000,
		AttachmentBudget: 6000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Assembler{source: source, opts: opts}
}

// Input is everything the assembler needs for one turn.
type Input struct {
	Session    *core.Session
	Speaker    string
	TurnNumber int
	Phase      core.Phase
	History    []core.Message
	Profiles   map[string]core.Profile
}

// Assemble builds the request. The idempotency key is left to the caller.
func (a *Assembler) Assemble(in Input) (completion.Request, error) {
	if in.Session == nil || in.Speaker == "" {
		return completion.Request{}, fmt.Errorf("prompt: session and speaker are required")
	}
	system, err := a.system(in)
	if err != nil {
		return completion.Request{}, err
	}
	return completion.Request{
		SessionKey: in.Session.ID,
		Actor:      in.Speaker,
		System:     system,
		Messages:   a.messages(in),
		MaxTokens:  a.opts.MaxTokens,
	}, nil
}

func (a *Assembler) system(in Input) (string, error) {
	s := in.Session
	me := profileFor(in.Profiles, in.Speaker)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", me.DisplayName())
	if me.Role != "" {
		fmt.Fprintf(&b, ", %s", me.Role)
	}
	b.WriteString(", taking part in a moderated roundtable discussion.\n")

	if me.Persona != "" {
		persona, err := util.RenderTemplate(me.Persona, map[string]any{
			"name":         me.DisplayName(),
			"role":         me.Role,
			"topic":        s.Topic,
			"participants": names(s.Participants, in.Profiles),
			"turn":         in.TurnNumber,
			"max_turns":    s.MaxTurns,
			"phase":        string(in.Phase),
		})
		if err != nil {
			return "", fmt.Errorf("prompt: render persona of %s: %w", in.Speaker, err)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(persona))
		b.WriteString("\n")
	}
	if len(me.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(me.Skills, ", "))
	}
	if len(me.Domains) > 0 {
		fmt.Fprintf(&b, "Domains: %s\n", strings.Join(me.Domains, ", "))
	}

	fmt.Fprintf(&b, "\nTopic: %s\n", s.Topic)
	b.WriteString("Participants:\n")
	for _, id := range s.Participants {
		p := profileFor(in.Profiles, id)
		line := p.DisplayName()
		if p.Role != "" {
			line += " (" + p.Role + ")"
		}
		if id == in.Speaker {
			line += " (you)"
		}
		fmt.Fprintf(&b, "- %s\n", line)
	}
	fmt.Fprintf(&b, "\nThis is turn %d of %d.\n%s\n", in.TurnNumber, s.MaxTurns, Guidance(in.Phase))

	if ctx := a.entityContext(in); ctx != "" {
		b.WriteString("\nRelevant context:\n")
		b.WriteString(ctx)
	}
	if att := a.attachments(s.Metadata.Attachments); att != "" {
		b.WriteString("\nAttached documents:\n")
		b.WriteString(att)
	}

	b.WriteString("\nSpeak only for yourself, in a few short paragraphs. Address others with @name when you need their input. Do not prefix your reply with your name.")
	return b.String(), nil
}

func (a *Assembler) entityContext(in Input) string {
	if a.source == nil || a.opts.ContextSnippets <= 0 {
		return ""
	}
	query := in.Session.Topic
	if n := len(in.History); n > 0 {
		query += " " + in.History[n-1].Content
	}
	results, err := a.source.Search(in.Session.ID, query, a.opts.ContextSnippets)
	if err != nil || len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", truncate(strings.TrimSpace(r.Content), a.opts.AttachmentRunes))
	}
	return b.String()
}

func (a *Assembler) attachments(atts []core.Attachment) string {
	budget := a.opts.AttachmentBudget
	var b strings.Builder
	for _, att := range atts {
		if budget <= 0 {
			break
		}
		limit := min(a.opts.AttachmentRunes, budget)
		text := truncate(strings.TrimSpace(att.Content), limit)
		budget -= len([]rune(text))
		fmt.Fprintf(&b, "### %s\n%s\n", att.Name, text)
	}
	return b.String()
}

func (a *Assembler) messages(in Input) []completion.Message {
	history := in.History
	if w := a.opts.HistoryWindow; w > 0 && len(history) > w {
		history = history[len(history)-w:]
	}
	out := make([]completion.Message, 0, len(history)+1)
	for _, m := range history {
		if m.ActorID == in.Speaker && !m.Interjection {
			out = append(out, completion.Message{Role: completion.RoleAssistant, Content: m.Content})
			continue
		}
		out = append(out, completion.Message{Role: completion.RoleUser, Content: Label(m, in.Profiles) + m.Content})
	}
	out = append(out, completion.Message{
		Role:    completion.RoleUser,
		Content: fmt.Sprintf("It is your turn, %s (turn %d of %d). Respond now.", profileFor(in.Profiles, in.Speaker).DisplayName(), in.TurnNumber, in.Session.MaxTurns),
	})
	return out
}

// Label returns the speaker prefix used for a message in prompts and transcripts.
func Label(m core.Message, profiles map[string]core.Profile) string {
	name := profileFor(profiles, m.ActorID).DisplayName()
	switch {
	case m.Interjection:
		return "[" + name + ", interjecting]: "
	case m.SenderType == core.SenderSystem:
		return "[moderator]: "
	default:
		return "[" + name + "]: "
	}
}

// Transcript renders history as labelled lines.
func Transcript(history []core.Message, profiles map[string]core.Profile) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(Label(m, profiles))
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func profileFor(profiles map[string]core.Profile, id string) core.Profile {
	if p, ok := profiles[id]; ok {
		if p.ID == "" {
			p.ID = id
		}
		return p
	}
	if id == core.UserActorID {
		return core.Profile{ID: id, Name: "User"}
	}
	return core.Profile{ID: id}
}

func names(ids []string, profiles map[string]core.Profile) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = profileFor(profiles, id).DisplayName()
	}
	return out
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
