package memory

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/roundtable/core"
)

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
	seq      int
	tokens   map[string]struct{}
}

// InMemoryStore is a process-local MemoryStore.
//
// Concurrency: protected by RWMutex.
// Search: scores each snippet by the share of query words it contains
// (case-insensitive); an empty query matches everything with score 1.
// Suitable for tests, demos and small deployments; swap for a vector index
// for semantic retrieval.
type InMemoryStore struct {
	mu      sync.RWMutex
	storage map[string]map[string]StoredMemory // sessionID -> memoryID -> stored memory
	nextSeq map[string]int
}

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		storage: make(map[string]map[string]StoredMemory),
		nextSeq: make(map[string]int),
	}
}

// Search returns up to limit snippets with a positive score, best first and
// oldest first among equal scores.
func (m *InMemoryStore) Search(sessionID string, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessionStorage, exists := m.storage[sessionID]
	if !exists || limit <= 0 {
		return []core.SearchResult{}, nil
	}
	terms := words(query)

	type hit struct {
		stored StoredMemory
		score  float64
	}
	hits := make([]hit, 0, len(sessionStorage))
	for _, stored := range sessionStorage {
		score := 1.0
		if len(terms) > 0 {
			matched := 0
			for t := range terms {
				if _, ok := stored.tokens[t]; ok {
					matched++
				}
			}
			score = float64(matched) / float64(len(terms))
		}
		if score > 0 {
			hits = append(hits, hit{stored: stored, score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].stored.seq < hits[j].stored.seq
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]core.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, core.SearchResult{
			ID:       h.stored.ID,
			Content:  h.stored.Content,
			Score:    h.score,
			Metadata: maps.Clone(h.stored.Metadata),
		})
	}
	return results, nil
}

// Store appends a new snippet under a per-session sequential id.
func (m *InMemoryStore) Store(sessionID string, content string, metadata map[string]any) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("memory content is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.storage[sessionID]; !exists {
		m.storage[sessionID] = make(map[string]StoredMemory)
	}
	seq := m.nextSeq[sessionID]
	m.nextSeq[sessionID] = seq + 1
	memoryID := fmt.Sprintf("mem_%d", seq)
	m.storage[sessionID][memoryID] = StoredMemory{
		ID:       memoryID,
		Content:  content,
		Metadata: maps.Clone(metadata),
		seq:      seq,
		tokens:   words(content),
	}
	return nil
}

// Delete removes a stored memory entry by id.
func (m *InMemoryStore) Delete(sessionID string, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessionStorage, exists := m.storage[sessionID]
	if !exists {
		return fmt.Errorf("memory not found")
	}
	if _, exists := sessionStorage[memoryID]; !exists {
		return fmt.Errorf("memory not found")
	}
	delete(sessionStorage, memoryID)
	return nil
}

// CopySession duplicates every snippet of from into to, used when a
// session is cloned.
func (m *InMemoryStore) CopySession(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.storage[from]
	if len(src) == 0 {
		return
	}
	dst := make(map[string]StoredMemory, len(src))
	for id, s := range src {
		s.Metadata = maps.Clone(s.Metadata)
		dst[id] = s
	}
	m.storage[to] = dst
	m.nextSeq[to] = m.nextSeq[from]
}

func words(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 3 {
			set[w] = struct{}{}
		}
	}
	return set
}
