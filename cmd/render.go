package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hupe1980/roundtable/core"
)

// renderer prints a session transcript. Styles are bound to out, so colour
// is dropped when out is not a terminal.
type renderer struct {
	out      io.Writer
	profiles map[string]core.Profile

	title   lipgloss.Style
	speaker lipgloss.Style
	human   lipgloss.Style
	body    lipgloss.Style
	muted   lipgloss.Style
	box     lipgloss.Style
}

func newRenderer(out io.Writer, profiles map[string]core.Profile) *renderer {
	lr := lipgloss.NewRenderer(out)
	return &renderer{
		out:      out,
		profiles: profiles,
		title:    lr.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		speaker:  lr.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		human:    lr.NewStyle().Bold(true).Foreground(lipgloss.Color("#50C878")),
		body:     lr.NewStyle().PaddingLeft(2).Width(80),
		muted:    lr.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
		box:      lr.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1),
	}
}

func (r *renderer) println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

func (r *renderer) name(actorID string) string {
	switch actorID {
	case core.UserActorID:
		return "You"
	case core.SystemActorID:
		return "System"
	}
	if p, ok := r.profiles[actorID]; ok {
		return p.DisplayName()
	}
	return actorID
}

func (r *renderer) header(sess *core.Session) {
	names := make([]string, len(sess.Participants))
	for i, id := range sess.Participants {
		names[i] = r.name(id)
	}
	r.println(r.title.Render("ROUNDTABLE · " + sess.Topic))
	r.println(r.muted.Render(fmt.Sprintf("%s · up to %d turns · %s routing", strings.Join(names, ", "), sess.MaxTurns, sess.RoutingMode)))
	r.println("")
}

func (r *renderer) message(m core.Message) {
	label := fmt.Sprintf("[%d] %s", m.TurnNumber, r.name(m.ActorID))
	if m.Interjection {
		label = fmt.Sprintf("[%d+] %s (interjection)", m.TurnNumber, r.name(m.ActorID))
	}
	style := r.speaker
	if m.ActorID == core.UserActorID {
		style = r.human
	}
	if p, ok := r.profiles[m.ActorID]; ok && p.Role != "" {
		label += r.muted.Render(" · " + p.Role)
	}
	r.println(style.Render(label))
	r.println(r.body.Render(m.Content))
	r.println("")
}

func (r *renderer) skipped(turn int, actorID, reason string) {
	r.println(r.muted.Render(fmt.Sprintf("[%d] %s skipped (%s)", turn, r.name(actorID), reason)))
}

func (r *renderer) prompt(turn int) {
	r.println(r.human.Render(fmt.Sprintf("[%d] Your turn, type a reply and press enter:", turn)))
}

func (r *renderer) note(s string) {
	r.println(r.muted.Render(s))
}

func (r *renderer) summary(s *core.Summary) {
	if s == nil {
		r.note("No summary was generated.")
		return
	}
	var b strings.Builder
	b.WriteString(r.title.Render("SUMMARY"))
	b.WriteString("\n" + s.Overview)
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n\n" + r.speaker.Render(title))
		for _, it := range items {
			b.WriteString("\n• " + it)
		}
	}
	section("Key points", s.KeyPoints)
	section("Decisions", s.Decisions)
	section("Open questions", s.OpenQuestions)
	r.println(r.box.Render(b.String()))
}

func (r *renderer) resolution(p *core.ResolutionPackage) {
	if p == nil {
		return
	}
	var b strings.Builder
	b.WriteString(r.title.Render(fmt.Sprintf("FOLLOW-UP ITEMS · %s", p.Mode)))
	if len(p.Items) == 0 {
		b.WriteString("\n" + r.muted.Render(fmt.Sprintf("none (extraction %s)", p.Extraction)))
	}
	for _, it := range p.Items {
		payload, err := json.Marshal(it.Payload)
		if err != nil {
			payload = []byte("{}")
		}
		fmt.Fprintf(&b, "\n[%s] %s %s", it.Status, it.Type, payload)
	}
	r.println(r.box.Render(b.String()))
}
