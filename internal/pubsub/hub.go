// Package pubsub provides a small in-process fan-out hub. Every subscriber gets
// its own buffered channel; Publish blocks until each live subscriber has
// accepted the value or unsubscribed, so no subscriber misses terminal values.
package pubsub

import (
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

type subscriber[T any] struct {
	ch     chan T
	done   chan struct{}
	filter func(T) bool
	once   sync.Once

	// mu orders in-flight sends before the channel is closed.
	mu     sync.RWMutex
	closed bool
}

// Hub fans published values out to subscribers.
type Hub[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber[T]
	nextID uint64
	buffer int
	closed bool
}

// New creates a hub with the given per-subscriber buffer (DefaultBuffer if <= 0).
func New[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub[T]{subs: make(map[uint64]*subscriber[T]), buffer: buffer}
}

// Subscribe registers a subscriber receiving every value. The returned cancel
// function unsubscribes and closes the channel; it is safe to call twice.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	return h.SubscribeFunc(nil)
}

// SubscribeFunc registers a subscriber receiving only values for which filter
// returns true (all values when filter is nil).
func (h *Hub[T]) SubscribeFunc(filter func(T) bool) (<-chan T, func()) {
	sub := &subscriber[T]{
		ch:     make(chan T, h.buffer),
		done:   make(chan struct{}),
		filter: filter,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Publish delivers v to every matching subscriber.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	targets := make([]*subscriber[T], 0, len(h.subs))
	for _, s := range h.subs {
		if s.filter == nil || s.filter(v) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.send(v)
	}
}

func (s *subscriber[T]) send(v T) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
	case <-s.done:
	}
}

// close unblocks pending sends via done, then waits for them before closing ch.
func (s *subscriber[T]) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Len returns the number of live subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone; later subscriptions get closed channels.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber[T])
	h.closed = true
	h.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
