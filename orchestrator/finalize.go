package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// finalize generates the summary and the resolution package, closes the
// session and sends the close notification. Summary and resolution failures
// are logged and skipped.
func (o *Orchestrator) finalize(ctx context.Context, l *loop, log logging.Logger) error {
	sess, err := o.store.Get(ctx, l.sessionID)
	if err != nil {
		return o.abort(l, err)
	}
	history, err := o.store.ListMessages(ctx, l.sessionID)
	if err != nil {
		return o.abort(l, err)
	}
	profiles := o.profiles.Profiles(sess.Participants)

	sum, err := o.summarizer.Generate(ctx, sess, history, profiles)
	if err != nil {
		log.Warn("Summary generation failed, closing without summary", "error", err)
		sum = nil
	}
	if sum != nil {
		if _, err := o.store.Update(ctx, sess.ID, func(s *core.Session) error {
			s.Metadata.Summary = sum
			return nil
		}); err != nil {
			return o.abort(l, err)
		}
		o.publish(Event{Type: EventSummary, SessionID: sess.ID, Summary: sum})
	}

	if sess.Metadata.Resolution == nil {
		pkg, err := o.resolver.Generate(ctx, sess, history, sum, profiles)
		if err != nil {
			log.Warn("Resolution generation failed, closing without package", "error", err)
		} else {
			if _, err := o.store.Update(ctx, sess.ID, func(s *core.Session) error {
				if s.Metadata.Resolution == nil {
					s.Metadata.Resolution = pkg
				}
				return nil
			}); err != nil {
				return o.abort(l, err)
			}
			log.Info("Resolution package generated", "items", len(pkg.Items), "extraction", string(pkg.Extraction))
			o.publish(Event{Type: EventResolution, SessionID: sess.ID, Resolution: pkg})
		}
	}

	sess, err = o.store.Update(ctx, sess.ID, func(s *core.Session) error {
		s.Status = core.StatusClosed
		return nil
	})
	if err != nil {
		return o.abort(l, err)
	}
	l.setState(StateCompleted)
	log.Info("Session closed", "turns", sess.TurnCount, "max_turns", sess.MaxTurns)
	o.publish(Event{Type: EventClosed, SessionID: sess.ID, State: StateCompleted, TurnNumber: sess.TurnCount})

	o.notify(ctx, sess, log)
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, sess *core.Session, log logging.Logger) {
	if o.notifier == nil {
		return
	}
	msg := fmt.Sprintf("Roundtable %q closed after %d of %d turns", sess.Topic, sess.TurnCount, sess.MaxTurns)
	if pkg := sess.Metadata.Resolution; pkg != nil && len(pkg.Items) > 0 {
		msg += fmt.Sprintf("; %d follow-up items (%d awaiting approval)", len(pkg.Items), pkg.Count(core.ItemPending))
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := o.notifier.Send(ctx, o.opts.NotifyChannel, msg); err != nil {
		log.Warn("Notification failed", "channel", o.opts.NotifyChannel, "error", err)
	}
}

// sessionLogger scopes the orchestrator logger to one session.
func (o *Orchestrator) sessionLogger(sessionID string) logging.Logger {
	if sl, ok := o.logger.(*logging.SessionLogger); ok {
		return sl.WithComponent("orchestrator").WithSession(sessionID)
	}
	return &scoped{Logger: o.logger, args: []any{"session_id", sessionID}}
}

func (o *Orchestrator) logTurn(log logging.Logger, turnNumber int, actor string, phase core.Phase, outcome string) {
	if sl, ok := log.(*logging.SessionLogger); ok {
		sl.LogTurn(turnNumber, actor, string(phase), outcome)
		return
	}
	log.Info("Turn finished", "turn", turnNumber, "actor_id", actor, "phase", string(phase), "outcome", outcome)
}

func (o *Orchestrator) logCompletion(log logging.Logger, actor, runID string, dur time.Duration, chars int, outcome string, err error) {
	if sl, ok := log.(*logging.SessionLogger); ok {
		sl.LogCompletion(actor, runID, dur, chars, outcome, err)
		return
	}
	if err != nil {
		log.Warn("Completion failed", "actor_id", actor, "run_id", runID, "duration", dur, "error", err)
		return
	}
	log.Debug("Completion finished", "actor_id", actor, "run_id", runID, "duration", dur, "chars", chars, "outcome", outcome)
}

// scoped prepends fixed key/value pairs to every log call.
type scoped struct {
	logging.Logger
	args []any
}

func (s *scoped) with(args []any) []any { return append(append([]any{}, s.args...), args...) }

func (s *scoped) Debug(msg string, args ...any) { s.Logger.Debug(msg, s.with(args)...) }
func (s *scoped) Info(msg string, args ...any)  { s.Logger.Info(msg, s.with(args)...) }
func (s *scoped) Warn(msg string, args ...any)  { s.Logger.Warn(msg, s.with(args)...) }
func (s *scoped) Error(msg string, args ...any) { s.Logger.Error(msg, s.with(args)...) }
