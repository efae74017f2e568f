package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/completion"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/session"
)

type fixture struct {
	store   *session.InMemoryStore
	backend *completion.MockBackend
	gateway *completion.Gateway
	orch    *Orchestrator
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	store := session.NewInMemoryStore()
	backend := completion.NewMockBackend()
	gw := completion.NewGateway(backend)
	fns := append([]func(o *Options){func(o *Options) {
		o.InterTurnDelay = 0
		o.UserWaitTimeout = time.Second
		o.TurnTimeout = 2 * time.Second
	}}, optFns...)
	orch := New(store, gw, fns...)
	t.Cleanup(func() {
		_ = orch.Close()
		_ = gw.Close()
	})
	return &fixture{store: store, backend: backend, gateway: gw, orch: orch}
}

func (f *fixture) session(t *testing.T, participants []string, maxTurns int, fns ...func(s *core.Session)) *core.Session {
	t.Helper()
	sess := core.NewSession("pricing strategy", participants, maxTurns)
	for _, fn := range fns {
		fn(sess)
	}
	require.NoError(t, f.store.Create(context.Background(), sess))
	return sess
}

func (f *fixture) messages(t *testing.T, id string) []core.Message {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), id)
	require.NoError(t, err)
	return msgs
}

func (f *fixture) get(t *testing.T, id string) *core.Session {
	t.Helper()
	sess, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return sess
}

// watch drains the live feed into a roomy buffer so the loop never blocks on
// the test.
func (f *fixture) watch(t *testing.T, id string) <-chan Event {
	t.Helper()
	feed, cancel := f.orch.Subscribe(id)
	out := make(chan Event, 1024)
	go func() {
		for ev := range feed {
			out <- ev
		}
	}()
	t.Cleanup(cancel)
	return out
}

func waitFor(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for feed event")
			return Event{}
		}
	}
}

func actors(msgs []core.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ActorID
	}
	return out
}

func TestRun_RoundRobinThreeAgents(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, []string{"a", "b", "c"}, 3)

	require.NoError(t, f.orch.Run(context.Background(), sess.ID))

	msgs := f.messages(t, sess.ID)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, actors(msgs))
	for i, m := range msgs {
		assert.Equal(t, i+1, m.TurnNumber)
		assert.Equal(t, m.ActorID+": noted.", m.Content)
		assert.NotEmpty(t, m.Reasoning)
	}

	got := f.get(t, sess.ID)
	assert.Equal(t, 3, got.TurnCount)
	assert.Equal(t, core.StatusClosed, got.Status)
	require.NotNil(t, got.Metadata.Summary)
	require.NotNil(t, got.Metadata.Resolution)
	assert.Equal(t, core.ExtractionMalformed, got.Metadata.Resolution.Extraction)
	assert.Equal(t, StateCompleted, f.orch.State(sess.ID))

	entry, ok := got.Metadata.TurnTracking.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, 1, entry.TurnCount)
	assert.Equal(t, 2, entry.LastSpokeTurn)

	calls := f.backend.Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, IdempotencyKey(sess.ID, 1, 0), calls[0].IdempotencyKey)
	assert.Equal(t, "a", calls[0].Actor)
}

func TestRun_ZeroParticipantsClosesImmediately(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, nil, 5)

	require.NoError(t, f.orch.Run(context.Background(), sess.ID))

	assert.Empty(t, f.messages(t, sess.ID))
	got := f.get(t, sess.ID)
	assert.Equal(t, core.StatusClosed, got.Status)
	assert.Equal(t, 0, got.TurnCount)
	assert.Nil(t, got.Metadata.Summary)
	assert.Empty(t, f.backend.Calls())
}

func TestRun_UserTimeoutSkipsTurn(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.UserWaitTimeout = 50 * time.Millisecond })
	sess := f.session(t, []string{"a", core.UserActorID, "b"}, 3)

	require.NoError(t, f.orch.Run(context.Background(), sess.ID))

	msgs := f.messages(t, sess.ID)
	assert.Equal(t, []string{"a", "b", "a"}, actors(msgs))
	for i, m := range msgs {
		assert.Equal(t, i+1, m.TurnNumber)
	}
	got := f.get(t, sess.ID)
	assert.Equal(t, 3, got.TurnCount)
	assert.Equal(t, 1, got.Metadata.SkippedSlots)
	assert.Equal(t, core.StatusClosed, got.Status)
}

func TestRun_SessionWaitTimeoutOverrides(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.UserWaitTimeout = time.Hour })
	sess := f.session(t, []string{core.UserActorID, "a"}, 1, func(s *core.Session) {
		s.UserWaitTimeout = 20 * time.Millisecond
	})

	require.NoError(t, f.orch.Run(context.Background(), sess.ID))
	assert.Equal(t, []string{"a"}, actors(f.messages(t, sess.ID)))
}

func TestRun_UserTurnSubmitted(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.UserWaitTimeout = 5 * time.Second })
	sess := f.session(t, []string{"a", core.UserActorID}, 2)
	events := f.watch(t, sess.ID)

	require.NoError(t, f.orch.Start(context.Background(), sess.ID))
	waitFor(t, events, func(ev Event) bool { return ev.State == StateWaitingForUser })
	assert.Equal(t, StateWaitingForUser, f.orch.State(sess.ID))

	msg, err := f.orch.SubmitUserMessage(context.Background(), sess.ID, "Let's keep the free tier.")
	require.NoError(t, err)
	assert.False(t, msg.Interjection)
	assert.Equal(t, 2, msg.TurnNumber)

	require.NoError(t, f.orch.Wait(context.Background(), sess.ID))

	msgs := f.messages(t, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.UserActorID, msgs[1].ActorID)
	assert.Equal(t, core.SenderUser, msgs[1].SenderType)
	assert.Equal(t, 2, f.get(t, sess.ID).TurnCount)
}

func TestRun_CompletionErrorSkipsTurn(t *testing.T) {
	f := newFixture(t)
	f.backend.Enqueue(completion.MockReply{Err: errors.New("overloaded")})
	sess := f.session(t, []string{"a", "b", "c"}, 3)

	require.NoError(t, f.orch.Run(context.Background(), sess.ID))

	msgs := f.messages(t, sess.ID)
	assert.Equal(t, []string{"b", "c", "a"}, actors(msgs))
	got := f.get(t, sess.ID)
	assert.Equal(t, 3, got.TurnCount)
	assert.Equal(t, core.StatusClosed, got.Status)
}

func TestRun_TurnTimeoutKeepsPartialText(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.TurnTimeout = 200 * time.Millisecond })
	f.backend.Enqueue(completion.MockReply{Chunks: []string{"Tiered ", "pricing"}, Hang: true})
	sess := f.session(t, []string{"a"}, 1)

	require.NoError(t, f.orch.Run(context.Background(), sess.ID))

	msgs := f.messages(t, sess.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Tiered pricing", msgs[0].Content)
}

func TestRun_DeadServiceEndsAfterConsecutiveSkips(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxConsecutiveSkips = 3 })
	f.backend.Enqueue(
		completion.MockReply{Err: errors.New("down")},
		completion.MockReply{Err: errors.New("down")},
		completion.MockReply{Err: errors.New("down")},
	)
	sess := f.session(t, []string{"a", "b"}, 10)

	require.NoError(t, f.orch.Run(context.Background(), sess.ID))

	assert.Empty(t, f.messages(t, sess.ID))
	got := f.get(t, sess.ID)
	assert.Equal(t, core.StatusClosed, got.Status)
	assert.Equal(t, 0, got.TurnCount)
}

func TestCancelMidTurn(t *testing.T) {
	f := newFixture(t)
	f.backend.Enqueue(completion.MockReply{Chunks: []string{"half a "}, Hang: true})
	sess := f.session(t, []string{"a", "b"}, 4)
	events := f.watch(t, sess.ID)

	require.NoError(t, f.orch.Start(context.Background(), sess.ID))
	waitFor(t, events, func(ev Event) bool { return ev.Type == EventDelta })

	text, ok := f.orch.Streaming(sess.ID)
	assert.True(t, ok)
	assert.Equal(t, "half a ", text)

	require.NoError(t, f.orch.Cancel(sess.ID))
	require.NoError(t, f.orch.Wait(context.Background(), sess.ID))

	assert.Empty(t, f.messages(t, sess.ID))
	got := f.get(t, sess.ID)
	assert.Equal(t, 0, got.TurnCount)
	assert.Equal(t, core.StatusOpen, got.Status)
	assert.Equal(t, StateCancelled, f.orch.State(sess.ID))

	// resuming continues from the persisted turn count
	require.NoError(t, f.orch.Run(context.Background(), sess.ID))
	assert.Equal(t, []string{"a", "b", "a", "b"}, actors(f.messages(t, sess.ID)))
	assert.Equal(t, core.StatusClosed, f.get(t, sess.ID).Status)
}

func TestStart_SecondLoopRejected(t *testing.T) {
	f := newFixture(t)
	f.backend.Enqueue(completion.MockReply{Hang: true})
	sess := f.session(t, []string{"a"}, 2)

	require.NoError(t, f.orch.Start(context.Background(), sess.ID))
	err := f.orch.Start(context.Background(), sess.ID)
	assert.ErrorIs(t, err, core.ErrLoopRunning)
	assert.Equal(t, StateRunning, f.orch.State(sess.ID))

	require.NoError(t, f.orch.Cancel(sess.ID))
	require.NoError(t, f.orch.Wait(context.Background(), sess.ID))
}

func TestStart_ClosedSession(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, []string{"a"}, 1, func(s *core.Session) { s.Status = core.StatusClosed })

	err := f.orch.Start(context.Background(), sess.ID)
	assert.ErrorIs(t, err, core.ErrSessionClosed)
	assert.Equal(t, StateIdle, f.orch.State(sess.ID))

	assert.ErrorIs(t, f.orch.Start(context.Background(), "missing"), core.ErrSessionNotFound)
}

func TestControlWithoutLoop(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.orch.Cancel("x"), core.ErrLoopNotRunning)
	assert.ErrorIs(t, f.orch.Pause("x"), core.ErrLoopNotRunning)
	assert.ErrorIs(t, f.orch.Resume("x"), core.ErrLoopNotRunning)
	assert.NoError(t, f.orch.Wait(context.Background(), "x"))
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, []string{"a", "b"}, 2)
	events := f.watch(t, sess.ID)

	require.NoError(t, f.orch.Start(context.Background(), sess.ID))
	require.NoError(t, f.orch.Pause(sess.ID))
	require.NoError(t, f.orch.Pause(sess.ID))

	waitFor(t, events, func(ev Event) bool { return ev.Type == EventLoopState && ev.State == StatePaused })
	assert.Equal(t, StatePaused, f.orch.State(sess.ID))
	assert.LessOrEqual(t, len(f.messages(t, sess.ID)), 1)

	require.NoError(t, f.orch.Resume(sess.ID))
	require.NoError(t, f.orch.Resume(sess.ID))
	require.NoError(t, f.orch.Wait(context.Background(), sess.ID))
	assert.Len(t, f.messages(t, sess.ID), 2)
}

func TestSubmitUserMessage_Interjection(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, []string{"a", "b", core.UserActorID}, 3)

	first, err := f.orch.SubmitUserMessage(context.Background(), sess.ID, "Quick note for @a")
	require.NoError(t, err)
	assert.True(t, first.Interjection)
	assert.Equal(t, 0, first.TurnNumber)
	assert.Equal(t, 1, first.InterjectionSeq)
	assert.Equal(t, []string{"a"}, first.Mentions)

	second, err := f.orch.SubmitUserMessage(context.Background(), sess.ID, "And another")
	require.NoError(t, err)
	assert.Equal(t, 2, second.InterjectionSeq)

	got := f.get(t, sess.ID)
	assert.Equal(t, 2, got.Metadata.InterjectionSeq)
	assert.Equal(t, 0, got.TurnCount)
	assert.Len(t, f.messages(t, sess.ID), 2)

	_, err = f.orch.SubmitUserMessage(context.Background(), sess.ID, "   ")
	assert.ErrorIs(t, err, core.ErrInvalidSession)
}

func TestSubmitUserMessage_ClosedSession(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, []string{"a"}, 1, func(s *core.Session) { s.Status = core.StatusClosed })
	_, err := f.orch.SubmitUserMessage(context.Background(), sess.ID, "too late")
	assert.ErrorIs(t, err, core.ErrSessionClosed)
}

func TestRaiseHand_SmartRoutingSelectsUser(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.UserWaitTimeout = 5 * time.Second })
	sess := f.session(t, []string{"a", "b", core.UserActorID}, 2, func(s *core.Session) {
		s.RoutingMode = core.RoutingSmart
	})
	events := f.watch(t, sess.ID)

	require.NoError(t, f.orch.RaiseHand(context.Background(), sess.ID))
	require.NoError(t, f.orch.Start(context.Background(), sess.ID))

	ev := waitFor(t, events, func(ev Event) bool { return ev.Type == EventTurnStarted })
	assert.Equal(t, core.UserActorID, ev.ActorID)
	waitFor(t, events, func(ev Event) bool { return ev.State == StateWaitingForUser })

	_, err := f.orch.SubmitUserMessage(context.Background(), sess.ID, "I want to talk about pricing")
	require.NoError(t, err)
	require.NoError(t, f.orch.Wait(context.Background(), sess.ID))

	msgs := f.messages(t, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.UserActorID, msgs[0].ActorID)
	assert.NotEqual(t, core.UserActorID, msgs[1].ActorID)
	assert.False(t, f.get(t, sess.ID).Metadata.RaisedHand)
}

func TestRaiseHand_NoHuman(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, []string{"a"}, 1)
	assert.ErrorIs(t, f.orch.RaiseHand(context.Background(), sess.ID), core.ErrInvalidSession)
}

type recordingNotifier struct {
	channel, message string
}

func (n *recordingNotifier) Send(_ context.Context, channel, message string) error {
	n.channel, n.message = channel, message
	return nil
}

func TestFinalize_SummaryResolutionAndNotify(t *testing.T) {
	backend := completion.NewMockBackend(func(o *completion.MockOptions) {
		o.Respond = func(req completion.Request) completion.MockReply {
			switch {
			case strings.HasSuffix(req.IdempotencyKey, ":summary"):
				return completion.MockReply{Text: "```json\n{\"overview\":\"Agreed on tiers.\",\"decisions\":[\"three tiers\"]}\n```"}
			case strings.HasSuffix(req.IdempotencyKey, ":resolution"):
				return completion.MockReply{Text: "```json\n{\"items\":[{\"type\":\"mission\",\"payload\":{\"title\":\"Draft tiers\"}},{\"type\":\"crm\",\"payload\":{\"action\":\"update\",\"entity\":\"account\"}}]}\n```"}
			default:
				return completion.MockReply{Text: "We should use three tiers."}
			}
		}
	})
	notifier := &recordingNotifier{}
	store := session.NewInMemoryStore()
	gw := completion.NewGateway(backend)
	orch := New(store, gw, func(o *Options) {
		o.InterTurnDelay = 0
		o.Notifier = notifier
	})
	t.Cleanup(func() {
		_ = orch.Close()
		_ = gw.Close()
	})

	sess := core.NewSession("pricing strategy", []string{"a", "b"}, 2)
	sess.ResolutionMode = core.ResolutionAuto
	require.NoError(t, store.Create(context.Background(), sess))
	require.NoError(t, orch.Run(context.Background(), sess.ID))

	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Metadata.Summary)
	assert.Equal(t, "Agreed on tiers.", got.Metadata.Summary.Overview)
	require.NotNil(t, got.Metadata.Resolution)
	require.Len(t, got.Metadata.Resolution.Items, 2)
	assert.Equal(t, core.ItemApproved, got.Metadata.Resolution.Items[0].Status)
	assert.Equal(t, core.ItemPending, got.Metadata.Resolution.Items[1].Status)

	assert.Equal(t, "roundtable", notifier.channel)
	assert.Contains(t, notifier.message, "pricing strategy")
	assert.Contains(t, notifier.message, "1 awaiting approval")
}

func TestFinalize_SummaryFailureStillCloses(t *testing.T) {
	backend := completion.NewMockBackend(func(o *completion.MockOptions) {
		o.Respond = func(req completion.Request) completion.MockReply {
			if strings.HasSuffix(req.IdempotencyKey, ":summary") {
				return completion.MockReply{Err: errors.New("summary model down")}
			}
			return completion.MockReply{Text: "ok then"}
		}
	})
	gw := completion.NewGateway(backend)
	store := session.NewInMemoryStore()
	orch := New(store, gw, func(o *Options) { o.InterTurnDelay = 0 })
	t.Cleanup(func() {
		_ = orch.Close()
		_ = gw.Close()
	})

	sess := core.NewSession("t", []string{"a"}, 1)
	require.NoError(t, store.Create(context.Background(), sess))
	require.NoError(t, orch.Run(context.Background(), sess.ID))

	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, got.Status)
	assert.Nil(t, got.Metadata.Summary)
}

func TestFeedEventsForOneTurn(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, []string{"a"}, 1)
	events := f.watch(t, sess.ID)

	require.NoError(t, f.orch.Run(context.Background(), sess.ID))

	var types []EventType
	for done := false; !done; {
		ev := waitFor(t, events, func(Event) bool { return true })
		types = append(types, ev.Type)
		done = ev.Type == EventClosed
	}
	assert.Equal(t, EventLoopState, types[0])
	assert.Contains(t, types, EventTurnStarted)
	assert.Contains(t, types, EventDelta)
	assert.Contains(t, types, EventStreamCleared)
	assert.Contains(t, types, EventMessage)
	assert.Contains(t, types, EventSummary)
	assert.Contains(t, types, EventResolution)
}

// cancelOnCommit honours ctx the way a database driver does and cancels the
// loop while the first turn is being committed.
type cancelOnCommit struct {
	*session.InMemoryStore
	cancel func()
	once   sync.Once
}

func (s *cancelOnCommit) Update(ctx context.Context, id string, fn core.UpdateFunc) (*core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.InMemoryStore.Update(ctx, id, fn)
}

func (s *cancelOnCommit) AppendTurn(ctx context.Context, m core.Message, fn core.UpdateFunc) (*core.Session, error) {
	s.once.Do(s.cancel)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.InMemoryStore.AppendTurn(ctx, m, fn)
}

func TestCancelDuringCommitKeepsTurnAtomic(t *testing.T) {
	ctx := context.Background()
	store := &cancelOnCommit{InMemoryStore: session.NewInMemoryStore()}
	gw := completion.NewGateway(completion.NewMockBackend())
	orch := New(store, gw, func(o *Options) { o.InterTurnDelay = 0 })
	t.Cleanup(func() {
		_ = orch.Close()
		_ = gw.Close()
	})

	sess := core.NewSession("pricing strategy", []string{"a", "b"}, 3)
	require.NoError(t, store.Create(ctx, sess))
	store.cancel = func() { _ = orch.Cancel(sess.ID) }

	require.NoError(t, orch.Run(ctx, sess.ID))

	msgs, err := store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount)
	assert.Equal(t, core.StatusOpen, got.Status)
	assert.Equal(t, StateCancelled, orch.State(sess.ID))

	require.NoError(t, orch.Run(ctx, sess.ID))

	msgs, err = store.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, actors(msgs))
	for i, m := range msgs {
		assert.Equal(t, i+1, m.TurnNumber)
	}
	got, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, len(core.OfficialTurns(msgs)), got.TurnCount)
}

func TestSubmitUserMessage_CancelledWaitFallsBackToInterjection(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.UserWaitTimeout = 5 * time.Second })
	sess := f.session(t, []string{core.UserActorID, "a"}, 2)
	events := f.watch(t, sess.ID)

	require.NoError(t, f.orch.Start(context.Background(), sess.ID))
	waitFor(t, events, func(ev Event) bool { return ev.State == StateWaitingForUser })

	require.NoError(t, f.orch.Cancel(sess.ID))
	msg, err := f.orch.SubmitUserMessage(context.Background(), sess.ID, "Keep the free tier.")
	require.NoError(t, err)
	require.NoError(t, f.orch.Wait(context.Background(), sess.ID))

	assert.True(t, msg.Interjection)
	msgs := f.messages(t, sess.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	got := f.get(t, sess.ID)
	assert.Equal(t, 0, got.TurnCount)
	assert.Equal(t, core.StatusOpen, got.Status)
}

func TestSlowFeedReaderDoesNotStallOtherSessions(t *testing.T) {
	store := session.NewInMemoryStore()
	var slowID string
	backend := completion.NewMockBackend(func(o *completion.MockOptions) {
		o.Respond = func(req completion.Request) completion.MockReply {
			if strings.HasPrefix(req.IdempotencyKey, slowID+":") {
				return completion.MockReply{Text: strings.Repeat("slow ", 200)}
			}
			return completion.MockReply{Text: req.Actor + ": agreed."}
		}
	})
	gw := completion.NewGateway(backend)
	orch := New(store, gw, func(o *Options) {
		o.InterTurnDelay = 0
		o.FeedBuffer = 1
		o.TurnTimeout = 30 * time.Second
	})

	ctx := context.Background()
	slow := core.NewSession("pricing strategy", []string{"a"}, 1)
	fast := core.NewSession("hiring plan", []string{"b"}, 1)
	require.NoError(t, store.Create(ctx, slow))
	require.NoError(t, store.Create(ctx, fast))
	slowID = slow.ID

	feed, stopFeed := orch.Subscribe(slow.ID)
	t.Cleanup(func() {
		stopFeed()
		_ = orch.Close()
		_ = gw.Close()
	})

	require.NoError(t, orch.Start(ctx, slow.ID))
	for ev := range feed {
		if ev.Type == EventDelta {
			break
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	require.NoError(t, orch.Run(runCtx, fast.ID))

	msgs, err := store.ListMessages(ctx, fast.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b: agreed.", msgs[0].Content)
}
