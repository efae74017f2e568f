package completion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockReply scripts one generation of a MockBackend.
type MockReply struct {
	// Text is split into word fragments unless Chunks is set.
	Text   string
	Chunks []string
	// Err is sent after the fragments.
	Err error
	// Hang blocks after the fragments until the run's context ends.
	Hang bool
}

// MockOptions configure a MockBackend.
type MockOptions struct {
	Delivery   Delivery
	ChunkDelay time.Duration
	// Respond produces a reply when the script queue is empty.
	Respond func(req Request) MockReply
}

// MockBackend is a lightweight in-memory Backend useful for tests & examples.
// Replies come from an enqueued script first, then from Respond, then from a
// canned "<actor>: noted." line.
type MockBackend struct {
	opts MockOptions

	mu     sync.Mutex
	script []MockReply
	calls  []Request
}

// NewMockBackend constructs a MockBackend.
func NewMockBackend(optFns ...func(o *MockOptions)) *MockBackend {
	opts := MockOptions{Delivery: Incremental}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &MockBackend{opts: opts}
}

// Enqueue appends scripted replies consumed in order by Generate.
func (m *MockBackend) Enqueue(replies ...MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
}

// Calls returns the requests seen so far.
func (m *MockBackend) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Name implements Backend.
func (m *MockBackend) Name() string { return "mock" }

// Delivery implements Backend.
func (m *MockBackend) Delivery() Delivery { return m.opts.Delivery }

// Generate implements Backend.
func (m *MockBackend) Generate(ctx context.Context, req Request) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var reply MockReply
	switch {
	case len(m.script) > 0:
		reply = m.script[0]
		m.script = m.script[1:]
	case m.opts.Respond != nil:
		reply = m.opts.Respond(req)
	default:
		reply = MockReply{Text: fmt.Sprintf("%s: noted.", req.Actor)}
	}
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)

		chunks := reply.Chunks
		if chunks == nil && reply.Text != "" {
			chunks = SplitWords(reply.Text)
		}
		var sofar strings.Builder
		for i, c := range chunks {
			if i > 0 && m.opts.ChunkDelay > 0 {
				select {
				case <-time.After(m.opts.ChunkDelay):
				case <-ctx.Done():
					return
				}
			}
			sofar.WriteString(c)
			frag := c
			if m.opts.Delivery == Cumulative {
				frag = sofar.String()
			}
			select {
			case out <- frag:
			case <-ctx.Done():
				return
			}
		}
		if reply.Hang {
			<-ctx.Done()
			return
		}
		if reply.Err != nil {
			errCh <- reply.Err
		}
	}()
	return out, errCh
}

// SplitWords splits text into fragments that keep their trailing whitespace,
// so concatenating them restores the input.
func SplitWords(text string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !space {
			out = append(out, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
