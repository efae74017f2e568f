package core

// MemoryStore keeps entity and attachment context snippets per session so
// prompts can inject them. Implementations can back search with embeddings,
// keywords or any heuristic.
type MemoryStore interface {
	Search(sessionID string, query string, limit int) ([]SearchResult, error)
	Store(sessionID string, content string, metadata map[string]any) error
	Delete(sessionID string, memoryID string) error
}
