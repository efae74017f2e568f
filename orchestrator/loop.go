package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/roundtable/completion"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/prompt"
	"github.com/hupe1980/roundtable/routing"
	"github.com/hupe1980/roundtable/turn"
)

// errTurnDropped tells a submitter that the loop stopped before the human
// turn could be recorded.
var errTurnDropped = errors.New("user turn dropped by stopped loop")

// turnResult is the outcome of one scheduled slot. A nil msg means the slot
// was skipped for reason.
type turnResult struct {
	msg     *core.Message
	reason  string
	outcome string
	// ack is set for human turns; the submitter waits on it.
	ack chan<- userAck
}

// settle reports the fate of a human turn to its submitter.
func (r turnResult) settle(msg core.Message, err error) {
	if r.ack != nil {
		r.ack <- userAck{msg: msg, err: err}
	}
}

// userTurn is human input handed to a loop waiting for the human's turn.
type userTurn struct {
	msg  core.Message
	done chan userAck
}

type userAck struct {
	msg core.Message
	err error
}

func (o *Orchestrator) run(ctx context.Context, l *loop) error {
	log := o.sessionLogger(l.sessionID)

	sess, err := o.begin(ctx, l.sessionID)
	if err != nil {
		return o.abort(l, err)
	}
	if len(sess.Participants) == 0 {
		log.Info("Session has no participants, closing")
		if _, err := o.store.Update(ctx, sess.ID, func(s *core.Session) error {
			s.Status = core.StatusClosed
			return nil
		}); err != nil {
			return o.abort(l, err)
		}
		l.setState(StateCompleted)
		o.publish(Event{Type: EventClosed, SessionID: sess.ID, State: StateCompleted})
		return nil
	}
	o.publish(Event{Type: EventLoopState, SessionID: sess.ID, State: StateRunning})

	skips := 0
	for {
		if err := o.waitIfPaused(ctx, l); err != nil {
			return o.cancelled(l)
		}
		if ctx.Err() != nil {
			return o.cancelled(l)
		}

		sess, err = o.store.Get(ctx, l.sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(l)
			}
			return o.abort(l, err)
		}
		if sess.TurnCount >= sess.MaxTurns {
			break
		}

		res, err := o.turn(ctx, l, sess, log)
		if ctx.Err() != nil {
			return o.cancelled(l)
		}
		if err != nil {
			return o.abort(l, err)
		}

		if res.reason == SkipNoSpeaker {
			break
		}
		if res.msg == nil {
			skips++
			if err := o.skipSlot(ctx, sess.ID); err != nil {
				if ctx.Err() != nil {
					return o.cancelled(l)
				}
				return o.abort(l, err)
			}
			if skips >= o.opts.MaxConsecutiveSkips {
				log.Warn("Too many consecutive skipped turns, ending discussion", "skips", skips)
				break
			}
		} else {
			skips = 0
		}

		if err := sleep(ctx, o.opts.InterTurnDelay); err != nil {
			return o.cancelled(l)
		}
	}

	return o.finalize(context.WithoutCancel(ctx), l, log)
}

// begin marks the session active and makes sure its turn tracking covers the
// current participants, rebuilding it from history when missing.
func (o *Orchestrator) begin(ctx context.Context, sessionID string) (*core.Session, error) {
	history, err := o.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return o.store.Update(ctx, sessionID, func(s *core.Session) error {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", core.ErrSessionClosed, s.ID)
		}
		if len(s.Participants) == 0 {
			return nil
		}
		s.Status = core.StatusActive
		if len(s.Metadata.TurnTracking) == 0 {
			s.Metadata.TurnTracking = turn.Rehydrate(s.Participants, history)
		} else {
			s.Metadata.TurnTracking = turn.Reconcile(s.Metadata.TurnTracking, s.Participants)
		}
		return nil
	})
}

// turn runs one scheduling slot: select, then wait for the human or stream
// the agent's reply, then persist.
func (o *Orchestrator) turn(ctx context.Context, l *loop, sess *core.Session, log logging.Logger) (turnResult, error) {
	history, err := o.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return turnResult{}, err
	}
	turnNumber := sess.TurnCount + 1
	slot := sess.TurnCount + sess.Metadata.SkippedSlots
	phase := turn.DetectPhase(turnNumber, sess.MaxTurns)
	profiles := o.profiles.Profiles(sess.Participants)

	decision := routing.SelectNextSpeaker(sess, history, slot, profiles)
	if decision.ActorID == "" {
		o.logTurn(log, turnNumber, "", phase, "no_speaker")
		return turnResult{reason: SkipNoSpeaker}, nil
	}

	sess, err = o.store.Update(ctx, sess.ID, func(s *core.Session) error {
		s.Phase = phase
		s.Metadata.LastRouting = &core.RoutingDecision{
			ActorID:    decision.ActorID,
			Reasoning:  decision.Reasoning,
			Slot:       slot,
			TurnNumber: turnNumber,
			DecidedAt:  time.Now().UTC(),
		}
		if decision.HandLowered {
			s.Metadata.RaisedHand = false
		}
		return nil
	})
	if err != nil {
		return turnResult{}, err
	}
	o.publish(Event{Type: EventTurnStarted, SessionID: sess.ID, TurnNumber: turnNumber, ActorID: decision.ActorID, Reasoning: decision.Reasoning})

	var res turnResult
	if routing.ShouldWaitForUser(decision) {
		res = o.awaitUser(ctx, l, sess, turnNumber)
	} else {
		res = o.agentTurn(ctx, l, sess, history, decision, turnNumber, slot, phase, profiles, log)
	}
	if ctx.Err() != nil {
		res.settle(core.Message{}, errTurnDropped)
		return turnResult{}, nil
	}

	if res.msg == nil {
		o.logTurn(log, turnNumber, decision.ActorID, phase, res.outcome)
		o.publish(Event{Type: EventTurnSkipped, SessionID: sess.ID, TurnNumber: turnNumber, ActorID: decision.ActorID, Reason: res.reason})
		return res, nil
	}

	res.msg.Reasoning = decision.Reasoning
	res.msg.Mentions = routing.DetectMentions(res.msg.Content, res.msg.ActorID, sess.Participants, profiles)
	if err := o.persistTurn(ctx, sess.ID, *res.msg); err != nil {
		res.settle(core.Message{}, err)
		return turnResult{}, err
	}
	res.settle(*res.msg, nil)
	o.logTurn(log, turnNumber, decision.ActorID, phase, res.outcome)
	o.publish(Event{Type: EventMessage, SessionID: sess.ID, TurnNumber: turnNumber, ActorID: res.msg.ActorID, Message: res.msg})
	return res, nil
}

func (o *Orchestrator) agentTurn(ctx context.Context, l *loop, sess *core.Session, history []core.Message, decision routing.Decision, turnNumber, slot int, phase core.Phase, profiles map[string]core.Profile, log logging.Logger) turnResult {
	req, err := o.assembler.Assemble(prompt.Input{
		Session:    sess,
		Speaker:    decision.ActorID,
		TurnNumber: turnNumber,
		Phase:      phase,
		History:    history,
		Profiles:   profiles,
	})
	if err != nil {
		log.Error("Prompt assembly failed", "actor_id", decision.ActorID, "error", err)
		return turnResult{reason: SkipCompletionError, outcome: "prompt_error"}
	}
	req.IdempotencyKey = IdempotencyKey(sess.ID, turnNumber, slot)

	turnCtx, cancel := context.WithTimeout(ctx, o.opts.TurnTimeout)
	defer cancel()

	start := time.Now()
	l.buf.Reset()
	res, err := completion.Collect(turnCtx, o.svc, req, func(text string) {
		l.buf.Reset()
		l.buf.Apply(text)
		o.publish(Event{Type: EventDelta, SessionID: sess.ID, TurnNumber: turnNumber, ActorID: decision.ActorID, Text: text})
	})
	l.buf.Reset()
	o.publish(Event{Type: EventStreamCleared, SessionID: sess.ID, TurnNumber: turnNumber, ActorID: decision.ActorID})

	outcome := "final"
	switch {
	case ctx.Err() != nil:
		return turnResult{}
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		o.logCompletion(log, decision.ActorID, res.RunID, time.Since(start), len(res.Text), "error", err)
		return turnResult{reason: SkipCompletionError, outcome: "error"}
	}
	o.logCompletion(log, decision.ActorID, res.RunID, time.Since(start), len(res.Text), outcome, nil)

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return turnResult{reason: SkipEmptyReply, outcome: "empty"}
	}
	msg := core.NewMessage(sess.ID, decision.ActorID, text, turnNumber)
	return turnResult{msg: &msg, outcome: outcome}
}

// awaitUser blocks until the human submits the turn, the wait times out or
// ctx ends.
func (o *Orchestrator) awaitUser(ctx context.Context, l *loop, sess *core.Session, turnNumber int) turnResult {
	timeout := o.opts.UserWaitTimeout
	if sess.UserWaitTimeout > 0 {
		timeout = sess.UserWaitTimeout
	}

	input := l.beginWait(turnNumber)
	o.publish(Event{Type: EventLoopState, SessionID: sess.ID, State: StateWaitingForUser, TurnNumber: turnNumber})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res turnResult
	select {
	case in := <-input:
		res = turnResult{msg: &in.msg, ack: in.done, outcome: "user"}
	case <-timer.C:
		res = turnResult{reason: SkipUserTimeout, outcome: "user_timeout"}
	case <-ctx.Done():
	}

	// input that raced the timer or a cancel is handed back so the caller
	// settles it either way
	if late, ok := l.endWait(); ok && res.msg == nil {
		res = turnResult{msg: &late.msg, ack: late.done, outcome: "user"}
	}
	if ctx.Err() == nil {
		o.publish(Event{Type: EventLoopState, SessionID: sess.ID, State: StateRunning})
	}
	return res
}

func (l *loop) beginWait(turnNumber int) <-chan userTurn {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waiting = true
	l.waitTurn = turnNumber
	l.userInput = make(chan userTurn, 1)
	l.state = StateWaitingForUser
	return l.userInput
}

func (l *loop) endWait() (userTurn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waiting = false
	if l.state == StateWaitingForUser {
		l.state = StateRunning
	}
	select {
	case in := <-l.userInput:
		return in, true
	default:
		return userTurn{}, false
	}
}

// waitIfPaused blocks while the loop is paused.
func (o *Orchestrator) waitIfPaused(ctx context.Context, l *loop) error {
	l.mu.Lock()
	if !l.paused {
		l.mu.Unlock()
		return nil
	}
	resume := l.resume
	l.state = StatePaused
	l.mu.Unlock()

	o.publish(Event{Type: EventLoopState, SessionID: l.sessionID, State: StatePaused})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-resume:
	}
	l.setState(StateRunning)
	o.publish(Event{Type: EventLoopState, SessionID: l.sessionID, State: StateRunning})
	return nil
}

// persistTurn commits a finished turn: the message, the advanced turn count
// and the tracking of speaker and mentioned participants land in one store
// step. The commit is detached from ctx; once a turn passed the cancel check
// it is either fully recorded or not at all.
func (o *Orchestrator) persistTurn(ctx context.Context, sessionID string, msg core.Message) error {
	_, err := o.store.AppendTurn(context.WithoutCancel(ctx), msg, func(s *core.Session) error {
		if s.TurnCount != msg.TurnNumber-1 {
			return fmt.Errorf("turn count moved from %d while turn %d ran", msg.TurnNumber-1, msg.TurnNumber)
		}
		s.TurnCount = msg.TurnNumber
		s.Metadata.TurnTracking = turn.Update(s.Metadata.TurnTracking, msg.ActorID, msg.TurnNumber)
		for _, id := range msg.Mentions {
			s.Metadata.TurnTracking = turn.MarkMentioned(s.Metadata.TurnTracking, id, msg.TurnNumber)
		}
		return nil
	})
	return err
}

func (o *Orchestrator) skipSlot(ctx context.Context, sessionID string) error {
	_, err := o.store.Update(ctx, sessionID, func(s *core.Session) error {
		s.Metadata.SkippedSlots++
		return nil
	})
	return err
}

// cancelled leaves the session open at its current turn count.
func (o *Orchestrator) cancelled(l *loop) error {
	l.buf.Reset()
	l.setState(StateCancelled)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := o.store.Update(ctx, l.sessionID, func(s *core.Session) error {
		if s.Status == core.StatusActive {
			s.Status = core.StatusOpen
		}
		return nil
	}); err != nil {
		o.logger.Warn("Failed to reopen cancelled session", "session_id", l.sessionID, "error", err)
	}
	o.publish(Event{Type: EventLoopState, SessionID: l.sessionID, State: StateCancelled})
	return nil
}

// abort ends the loop after an unexpected store error.
func (o *Orchestrator) abort(l *loop, err error) error {
	o.logger.Error("Orchestration loop failed", "session_id", l.sessionID, "error", err)
	_ = o.cancelled(l)
	return err
}

// IdempotencyKey is the completion idempotency key of a turn slot.
func IdempotencyKey(sessionID string, turnNumber, slot int) string {
	return fmt.Sprintf("%s:turn:%d:slot:%d", sessionID, turnNumber, slot)
}
