package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/completion"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/pubsub"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/prompt"
	"github.com/hupe1980/roundtable/resolution"
	"github.com/hupe1980/roundtable/routing"
	"github.com/hupe1980/roundtable/stream"
	"github.com/hupe1980/roundtable/summary"
	"github.com/hupe1980/roundtable/turn"
)

// Orchestrator runs conversation loops over a session store and a completion
// service. It is safe for concurrent use; loops for different sessions run
// concurrently.
type Orchestrator struct {
	store      core.SessionStore
	svc        completion.Service
	assembler  *prompt.Assembler
	summarizer *summary.Generator
	resolver   *resolution.Generator
	profiles   core.ProfileSource
	notifier   core.Notifier
	opts       Options
	logger     logging.Logger
	feed       *pubsub.Hub[Event]

	mu    sync.Mutex
	loops map[string]*loop
	last  map[string]State
}

// New creates an orchestrator.
func New(store core.SessionStore, svc completion.Service, optFns ...func(o *Options)) *Orchestrator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConsecutiveSkips < 1 {
		opts.MaxConsecutiveSkips = 1
	}

	logger := logging.OrNoOp(opts.Logger)
	profiles := opts.Profiles
	if profiles == nil {
		profiles = staticProfiles{}
	}
	summarizer := opts.Summarizer
	if summarizer == nil {
		summarizer = summary.New(svc, func(so *summary.Options) {
			so.Timeout = opts.SummaryTimeout
			so.Logger = logger
		})
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = resolution.NewGenerator(svc, func(ro *resolution.GeneratorOptions) {
			ro.Timeout = opts.ResolutionTimeout
			ro.Logger = logger
		})
	}

	return &Orchestrator{
		store: store,
		svc:   svc,
		assembler: prompt.New(opts.Context, func(po *prompt.Options) {
			if opts.HistoryWindow > 0 {
				po.HistoryWindow = opts.HistoryWindow
			}
			po.MaxTokens = opts.MaxTokens
		}),
		summarizer: summarizer,
		resolver:   resolver,
		profiles:   profiles,
		notifier:   opts.Notifier,
		opts:       opts,
		logger:     logger,
		feed:       pubsub.New[Event](opts.FeedBuffer),
		loops:      make(map[string]*loop),
		last:       make(map[string]State),
	}
}

// loop is the registry entry of one running session loop.
type loop struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
	err       error

	mu        sync.Mutex
	state     State
	paused    bool
	resume    chan struct{}
	waiting   bool
	waitTurn  int
	userInput chan userTurn
	buf       stream.Buffer
}

func (l *loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *loop) getState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start launches the loop of a session in the background. It returns
// ErrLoopRunning when a loop already runs for the session and
// ErrSessionClosed for closed or declined sessions. The loop outlives ctx;
// stop it with Cancel.
func (o *Orchestrator) Start(ctx context.Context, sessionID string) error {
	_, err := o.start(ctx, sessionID)
	return err
}

func (o *Orchestrator) start(ctx context.Context, sessionID string) (*loop, error) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &loop{
		sessionID: sessionID,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateRunning,
	}

	o.mu.Lock()
	if _, ok := o.loops[sessionID]; ok {
		o.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: %s", core.ErrLoopRunning, sessionID)
	}
	o.loops[sessionID] = l
	o.mu.Unlock()

	sess, err := o.store.Get(ctx, sessionID)
	if err == nil && sess.Status.IsTerminal() {
		err = fmt.Errorf("%w: %s", core.ErrSessionClosed, sessionID)
	}
	if err != nil {
		o.mu.Lock()
		delete(o.loops, sessionID)
		o.mu.Unlock()
		cancel()
		close(l.done)
		return nil, err
	}

	go func() {
		defer cancel()
		err := o.run(loopCtx, l)

		o.mu.Lock()
		l.err = err
		o.last[sessionID] = l.getState()
		delete(o.loops, sessionID)
		o.mu.Unlock()
		close(l.done)
	}()
	return l, nil
}

// Run starts the loop and blocks until it ends. When ctx ends first the loop
// is cancelled.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) error {
	l, err := o.start(ctx, sessionID)
	if err != nil {
		return err
	}
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		l.cancel()
		<-l.done
		return ctx.Err()
	}
}

// Wait blocks until the session's loop ends. It returns nil at once when no
// loop is running.
func (o *Orchestrator) Wait(ctx context.Context, sessionID string) error {
	l, ok := o.lookup(sessionID)
	if !ok {
		return nil
	}
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the session's loop at its next suspension point and leaves the
// session open. It does not wait for the loop to exit.
func (o *Orchestrator) Cancel(sessionID string) error {
	l, ok := o.lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrLoopNotRunning, sessionID)
	}
	l.cancel()
	return nil
}

// Pause makes the loop block before its next turn. Pausing a paused loop is
// a no-op.
func (o *Orchestrator) Pause(sessionID string) error {
	l, ok := o.lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrLoopNotRunning, sessionID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		l.paused = true
		l.resume = make(chan struct{})
	}
	return nil
}

// Resume releases a paused loop. Resuming a running loop is a no-op.
func (o *Orchestrator) Resume(sessionID string) error {
	l, ok := o.lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrLoopNotRunning, sessionID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		l.paused = false
		close(l.resume)
	}
	return nil
}

// State returns the loop state of a session. Sessions that never ran in this
// process are idle.
func (o *Orchestrator) State(sessionID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.loops[sessionID]; ok {
		return l.getState()
	}
	if s, ok := o.last[sessionID]; ok {
		return s
	}
	return StateIdle
}

// Streaming returns the partial text of the turn currently streaming.
func (o *Orchestrator) Streaming(sessionID string) (string, bool) {
	l, ok := o.lookup(sessionID)
	if !ok {
		return "", false
	}
	text := l.buf.String()
	return text, text != ""
}

// Subscribe returns the live feed of one session. Call the returned function
// to unsubscribe; a subscriber must keep reading until then.
func (o *Orchestrator) Subscribe(sessionID string) (<-chan Event, func()) {
	return o.feed.SubscribeFunc(func(ev Event) bool { return ev.SessionID == sessionID })
}

// RaiseHand flags that the human wants the next turn. Only smart routing
// honours the flag; selection clears it.
func (o *Orchestrator) RaiseHand(ctx context.Context, sessionID string) error {
	_, err := o.store.Update(ctx, sessionID, func(s *core.Session) error {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", core.ErrSessionClosed, s.ID)
		}
		if !s.HasHuman() {
			return fmt.Errorf("%w: session has no human participant", core.ErrInvalidSession)
		}
		s.Metadata.RaisedHand = true
		return nil
	})
	return err
}

// SubmitUserMessage records human input. While the loop waits for the human's
// scheduled turn the content becomes that official turn; otherwise it is
// stored as an interjection numbered after the current official turn with
// its own sequence number. Input handed to a waiting loop that is cancelled
// before recording it falls back to an interjection.
func (o *Orchestrator) SubmitUserMessage(ctx context.Context, sessionID, content string) (core.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return core.Message{}, fmt.Errorf("%w: empty message", core.ErrInvalidSession)
	}
	if l, ok := o.lookup(sessionID); ok {
		if in, delivered := l.deliver(sessionID, content); delivered {
			select {
			case ack := <-in.done:
				if ack.err == nil {
					return ack.msg, nil
				}
				if !errors.Is(ack.err, errTurnDropped) {
					return core.Message{}, ack.err
				}
				// the loop stopped first; keep the input as an interjection
			case <-ctx.Done():
				return core.Message{}, ctx.Err()
			}
		}
	}
	return o.interject(ctx, sessionID, content)
}

func (o *Orchestrator) interject(ctx context.Context, sessionID, content string) (core.Message, error) {
	var msg core.Message
	_, err := o.store.Update(ctx, sessionID, func(s *core.Session) error {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", core.ErrSessionClosed, s.ID)
		}
		turnNumber, seq := routing.NextInterjection(s)
		msg = core.NewMessage(s.ID, core.UserActorID, content, turnNumber)
		msg.Interjection = true
		msg.InterjectionSeq = seq
		msg.Mentions = routing.DetectMentions(content, core.UserActorID, s.Participants, o.profiles.Profiles(s.Participants))

		s.Metadata.InterjectionSeq = seq
		for _, id := range msg.Mentions {
			s.Metadata.TurnTracking = turn.MarkMentioned(s.Metadata.TurnTracking, id, turnNumber)
		}
		return nil
	})
	if err != nil {
		return core.Message{}, err
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return core.Message{}, err
	}
	o.publish(Event{Type: EventMessage, SessionID: sessionID, TurnNumber: msg.TurnNumber, ActorID: msg.ActorID, Message: &msg})
	return msg, nil
}

// deliver hands content to a loop waiting for the human's turn. The loop
// answers on the returned turn's done channel once the turn is recorded or
// dropped.
func (l *loop) deliver(sessionID, content string) (userTurn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.waiting {
		return userTurn{}, false
	}
	in := userTurn{
		msg:  core.NewMessage(sessionID, core.UserActorID, content, l.waitTurn),
		done: make(chan userAck, 1),
	}
	l.waiting = false
	l.userInput <- in
	return in, true
}

// Close cancels every running loop, waits for them and closes the live feed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	running := make([]*loop, 0, len(o.loops))
	for _, l := range o.loops {
		running = append(running, l)
	}
	o.mu.Unlock()

	for _, l := range running {
		l.cancel()
		<-l.done
	}
	o.feed.Close()
	return nil
}

func (o *Orchestrator) lookup(sessionID string) (*loop, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.loops[sessionID]
	return l, ok
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
