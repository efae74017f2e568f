package completion

import (
	"context"
	"fmt"

	"github.com/hupe1980/roundtable/stream"
)

// Stream sends req and returns the events of its run only. The subscription
// is opened before the send so no early event is lost, and it is released
// when a terminal event has been delivered or ctx is done; the returned
// channel is closed in both cases. When ctx ends first and svc implements
// Aborter, the run is aborted.
//
// Events are accepted when their run ID equals either the idempotency key or
// the acknowledged run ID. The shared subscription is drained continuously
// and accepted events are queued, so a slow reader of one run never holds up
// the service's publisher for other runs.
func Stream(ctx context.Context, svc Service, req Request) (<-chan Event, Ack, error) {
	events, unsubscribe := svc.Subscribe()
	ack, err := svc.Send(ctx, req)
	if err != nil {
		unsubscribe()
		return nil, Ack{}, err
	}

	accept := func(ev Event) bool {
		return ev.RunID == ack.RunID || (req.IdempotencyKey != "" && ev.RunID == req.IdempotencyKey)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer unsubscribe()

		var queue []Event
		for {
			var (
				send chan<- Event
				next Event
			)
			if len(queue) > 0 {
				send, next = out, queue[0]
			} else if events == nil {
				return
			}

			select {
			case <-ctx.Done():
				if a, ok := svc.(Aborter); ok {
					a.Abort(ack.RunID)
				}
				return
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if !accept(ev) {
					continue
				}
				queue = append(queue, ev)
				if ev.State.Terminal() {
					unsubscribe()
					events = nil
				}
			case send <- next:
				queue = queue[1:]
				if next.State.Terminal() {
					return
				}
			}
		}
	}()
	return out, ack, nil
}

// Result is the outcome of Collect.
type Result struct {
	RunID string
	Text  string
	State State
}

// Collect runs req to completion, reconstructing the text from deltas with
// stream.Merge. onDelta (optional) sees the reconstructed text after every
// delta.
//
// When ctx ends before a terminal event, Collect returns the partial text
// together with ctx.Err(). Error and aborted events return the text so far
// with ErrRunFailed or ErrRunAborted.
func Collect(ctx context.Context, svc Service, req Request, onDelta func(text string)) (Result, error) {
	events, ack, err := Stream(ctx, svc, req)
	if err != nil {
		return Result{}, err
	}
	res := Result{RunID: ack.RunID}
	for ev := range events {
		res.State = ev.State
		switch ev.State {
		case StateDelta:
			res.Text = stream.Merge(res.Text, ev.Message)
			if onDelta != nil {
				onDelta(res.Text)
			}
		case StateFinal:
			if ev.Message != "" {
				res.Text = stream.Merge(res.Text, ev.Message)
			}
			return res, nil
		case StateError:
			return res, fmt.Errorf("%w: %s", ErrRunFailed, ev.ErrorMessage)
		case StateAborted:
			return res, ErrRunAborted
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, ErrStreamClosed
}
