// Package memory contains concrete MemoryStore implementations. The store
// interface and SearchResult type reside in the core package; depend on
// core.MemoryStore and pick an implementation at wiring time.
//
// The stores hold entity and attachment snippets (customer notes, contract
// excerpts, prior decisions) per session. The prompt assembler searches them
// with the current topic and latest message to inject relevant context.
package memory
