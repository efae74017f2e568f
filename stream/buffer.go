package stream

import "sync"

// Buffer accumulates fragments of one streamed response. It is safe for
// concurrent use; readers observe the latest merged text.
type Buffer struct {
	mu     sync.RWMutex
	text   string
	chunks int
}

// Apply merges a fragment and returns the new text.
func (b *Buffer) Apply(fragment string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = Merge(b.text, fragment)
	b.chunks++
	return b.text
}

// String returns the current text.
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Chunks returns how many fragments were applied.
func (b *Buffer) Chunks() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chunks
}

// Reset clears the buffer.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = ""
	b.chunks = 0
}
