// Package roundtable provides a high-level facade over the orchestrator,
// completion gateway, session store and resolution pipeline. Most
// applications interact with this package by:
//  1. Creating a Roundtable via New() (optionally overriding default in-memory services)
//  2. Creating a session with participants and a turn budget
//  3. Running it (Run) or starting it in the background (Start) and
//     following the live feed
//  4. Reviewing and executing the resolution package
//
// All defaults are safe for local development and testing: an in-memory
// store, a mock completion backend scripted by DemoReply, a log notifier and
// an in-memory executor.
package roundtable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hupe1980/roundtable/completion"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/notify"
	"github.com/hupe1980/roundtable/orchestrator"
	"github.com/hupe1980/roundtable/resolution"
	"github.com/hupe1980/roundtable/server"
	"github.com/hupe1980/roundtable/session"
)

// ContextStore holds per-session context snippets injected into prompts.
type ContextStore interface {
	core.MemoryStore
	CopySession(from, to string)
}

// Options configures the Roundtable instance.
type Options struct {
	// Stores (defaults to in-memory implementations if not provided)
	SessionStore core.SessionStore
	ContextStore ContextStore

	// Backend produces agent replies (defaults to a mock scripted by DemoReply).
	Backend completion.Backend
	// GatewayOptions tune the completion gateway wrapping Backend.
	GatewayOptions []func(o *completion.GatewayOptions)

	Executor core.ItemExecutor
	Notifier core.Notifier
	Profiles core.ProfileSource

	// Orchestrator tweaks loop timeouts and pacing.
	Orchestrator []func(o *orchestrator.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Roundtable is the high-level facade aggregating the orchestrator and its
// services.
type Roundtable struct {
	opts     Options
	gateway  *completion.Gateway
	orch     *orchestrator.Orchestrator
	pipeline *resolution.Pipeline
}

// New creates a Roundtable with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Roundtable {
	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		ContextStore: memory.NewInMemoryStore(),
		Executor:     resolution.NewMemoryExecutor(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Backend == nil {
		opts.Backend = completion.NewMockBackend(func(o *completion.MockOptions) {
			o.Respond = DemoReply
		})
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLog(opts.Logger)
	}

	gwFns := append([]func(o *completion.GatewayOptions){func(o *completion.GatewayOptions) {
		o.Logger = opts.Logger
	}}, opts.GatewayOptions...)
	gateway := completion.NewGateway(opts.Backend, gwFns...)

	orchFns := append([]func(o *orchestrator.Options){func(o *orchestrator.Options) {
		o.Context = opts.ContextStore
		o.Notifier = opts.Notifier
		o.Profiles = opts.Profiles
		o.Logger = opts.Logger
	}}, opts.Orchestrator...)

	return &Roundtable{
		opts:     opts,
		gateway:  gateway,
		orch:     orchestrator.New(opts.SessionStore, gateway, orchFns...),
		pipeline: resolution.NewPipeline(opts.SessionStore, opts.Executor, func(o *resolution.PipelineOptions) { o.Logger = opts.Logger }),
	}
}

// Store returns the session store.
func (r *Roundtable) Store() core.SessionStore { return r.opts.SessionStore }

// Context returns the context snippet store.
func (r *Roundtable) Context() ContextStore { return r.opts.ContextStore }

// Orchestrator returns the loop registry.
func (r *Roundtable) Orchestrator() *orchestrator.Orchestrator { return r.orch }

// Pipeline returns the resolution review pipeline.
func (r *Roundtable) Pipeline() *resolution.Pipeline { return r.pipeline }

// CreateSession stores a new open session. fns adjust it before it is saved.
func (r *Roundtable) CreateSession(ctx context.Context, topic string, participants []string, maxTurns int, fns ...func(s *core.Session)) (*core.Session, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", core.ErrInvalidSession)
	}
	if maxTurns <= 0 {
		return nil, fmt.Errorf("%w: max turns must be > 0", core.ErrInvalidSession)
	}
	sess := core.NewSession(topic, participants, maxTurns)
	for _, fn := range fns {
		fn(sess)
	}
	if err := r.opts.SessionStore.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Run drives the session's loop to completion or cancellation.
func (r *Roundtable) Run(ctx context.Context, sessionID string) error {
	return r.orch.Run(ctx, sessionID)
}

// Start launches the session's loop in the background.
func (r *Roundtable) Start(ctx context.Context, sessionID string) error {
	return r.orch.Start(ctx, sessionID)
}

// Transcript returns the messages of a session in order.
func (r *Roundtable) Transcript(ctx context.Context, sessionID string) ([]core.Message, error) {
	return r.opts.SessionStore.ListMessages(ctx, sessionID)
}

// Handler returns the HTTP API over this instance.
func (r *Roundtable) Handler(optFns ...func(o *server.Options)) http.Handler {
	fns := append([]func(o *server.Options){func(o *server.Options) {
		o.Context = r.opts.ContextStore
		o.Logger = r.opts.Logger
	}}, optFns...)
	return server.New(r.opts.SessionStore, r.orch, r.pipeline, fns...)
}

// Close stops running loops, then the gateway.
func (r *Roundtable) Close() error {
	return errors.Join(r.orch.Close(), r.gateway.Close())
}
