// Package completion defines the contract with the language-model Completion
// Service and provides a Gateway that implements it over a streaming Backend.
//
// The contract follows a send/subscribe shape:
//
//   - Send registers a request under a caller-chosen idempotency key and
//     returns an Ack carrying the run ID, which may differ from the key
//   - Subscribe returns one shared event stream for every in-flight run;
//     each Event names its run and is a delta, final, error or aborted event
//
// Stream and Collect wrap that contract in a per-request scope: they subscribe
// before sending, keep only events of their own run, and unsubscribe on exit.
//
// Backends stream raw fragments over channels (openai and anthropic
// subpackages, MockBackend for tests and examples).
package completion
