package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/roundtable/internal/pubsub"
	"github.com/hupe1980/roundtable/logging"
)

// GatewayOptions configure a Gateway.
type GatewayOptions struct {
	// Delivery selects how delta events are published. Cumulative (default)
	// publishes the exact text so far; Incremental forwards backend fragments
	// as-is.
	Delivery Delivery
	// RunTimeout bounds a single run (default 5m). Runs that hit it end with
	// an error event.
	RunTimeout time.Duration
	// KeyAsRunID makes the run ID equal to the idempotency key.
	KeyAsRunID bool
	// Retain is how many finished runs are remembered for deduplication (default 1024).
	Retain int
	// Buffer is the per-subscriber event buffer.
	Buffer int
	Logger logging.Logger
}

type run struct {
	ack      Ack
	key      string
	cancel   context.CancelFunc
	aborted  bool
	done     bool
	terminal Event
}

// Gateway implements Service over a Backend. It assigns run IDs, deduplicates
// sends by idempotency key and fans events out to subscribers.
type Gateway struct {
	backend Backend
	hub     *pubsub.Hub[Event]
	opts    GatewayOptions
	logger  logging.Logger

	mu       sync.Mutex
	byKey    map[string]*run
	byID     map[string]*run
	finished []string
	closed   bool
	wg       sync.WaitGroup
}

// NewGateway creates a gateway over backend.
func NewGateway(backend Backend, optFns ...func(o *GatewayOptions)) *Gateway {
	opts := GatewayOptions{
		Delivery:   Cumulative,
		RunTimeout: 5 * time.Minute,
		Retain:     1024,
		Buffer:     pubsub.DefaultBuffer,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{
		backend: backend,
		hub:     pubsub.New[Event](opts.Buffer),
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		byKey:   make(map[string]*run),
		byID:    make(map[string]*run),
	}
}

// Backend returns the backend the gateway drives.
func (g *Gateway) Backend() Backend { return g.backend }

// Subscribe implements Service.
func (g *Gateway) Subscribe() (<-chan Event, func()) { return g.hub.Subscribe() }

// Send implements Service. A second Send with the same idempotency key
// returns the original ack; if that run already finished its terminal event
// is published again so late subscribers still observe it. Aborted runs are
// not remembered, so resending their key starts a new run.
func (g *Gateway) Send(ctx context.Context, req Request) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Ack{}, ErrGatewayClosed
	}
	if r, ok := g.byKey[key]; ok {
		ack, done, terminal := r.ack, r.done, r.terminal
		g.mu.Unlock()
		if done {
			g.wg.Add(1)
			go func() {
				defer g.wg.Done()
				g.hub.Publish(terminal)
			}()
		}
		g.logger.Debug("Duplicate completion request", "idempotency_key", key, "run_id", ack.RunID, "finished", done)
		return ack, nil
	}

	runID := uuid.NewString()
	if g.opts.KeyAsRunID {
		runID = key
	}
	runCtx, cancel := context.WithTimeout(context.Background(), g.opts.RunTimeout)
	r := &run{ack: Ack{RunID: runID}, key: key, cancel: cancel}
	g.byKey[key] = r
	g.byID[runID] = r
	g.wg.Add(1)
	g.mu.Unlock()

	go g.execute(runCtx, r, req)
	return r.ack, nil
}

// Abort stops a running run; it ends with an aborted event. It reports
// whether the run was still in flight.
func (g *Gateway) Abort(runID string) bool {
	g.mu.Lock()
	r, ok := g.byID[runID]
	if !ok || r.done || r.aborted {
		g.mu.Unlock()
		return false
	}
	r.aborted = true
	if g.byKey[r.key] == r {
		delete(g.byKey, r.key)
	}
	g.mu.Unlock()
	r.cancel()
	return true
}

// Close aborts every in-flight run, waits for them to finish and closes the
// event stream.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	for _, r := range g.byID {
		if !r.done {
			r.aborted = true
			r.cancel()
		}
	}
	g.mu.Unlock()
	g.wg.Wait()
	g.hub.Close()
	return nil
}

func (g *Gateway) execute(ctx context.Context, r *run, req Request) {
	defer g.wg.Done()
	defer r.cancel()

	start := time.Now()
	chunks, errs := g.backend.Generate(ctx, req)
	cumulative := g.backend.Delivery() == Cumulative

	var text string
	for chunk := range chunks {
		if cumulative {
			text = chunk
		} else {
			text += chunk
		}
		msg := text
		if g.opts.Delivery == Incremental {
			msg = chunk
		}
		g.hub.Publish(Event{RunID: r.ack.RunID, State: StateDelta, Message: msg})
	}
	var genErr error
	for err := range errs {
		if err != nil && genErr == nil {
			genErr = err
		}
	}

	g.mu.Lock()
	aborted := r.aborted
	g.mu.Unlock()

	ev := Event{RunID: r.ack.RunID}
	switch {
	case aborted:
		ev.State = StateAborted
		ev.Message = text
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		ev.State = StateError
		ev.Message = text
		ev.ErrorMessage = fmt.Sprintf("run timed out after %s", g.opts.RunTimeout)
	case genErr != nil:
		ev.State = StateError
		ev.Message = text
		ev.ErrorMessage = genErr.Error()
	default:
		ev.State = StateFinal
		ev.Message = text
	}
	g.logger.Debug("Completion run finished",
		"backend", g.backend.Name(), "run_id", r.ack.RunID, "state", string(ev.State),
		"duration", time.Since(start), "chars", len(text))

	g.finish(r, ev)
	g.hub.Publish(ev)
}

func (g *Gateway) finish(r *run, ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r.done = true
	r.terminal = ev
	if ev.State == StateAborted {
		// an aborted run is forgotten so a retry with the same key starts over
		if g.byKey[r.key] == r {
			delete(g.byKey, r.key)
		}
		delete(g.byID, r.ack.RunID)
		return
	}
	g.finished = append(g.finished, r.key)
	for len(g.finished) > g.opts.Retain && g.opts.Retain > 0 {
		old := g.byKey[g.finished[0]]
		g.finished = g.finished[1:]
		if old != nil {
			delete(g.byKey, old.key)
			delete(g.byID, old.ack.RunID)
		}
	}
}
