// Package logging provides a minimal logging interface and adapters for roundtable.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the orchestrator, gateway and server use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - SessionLogger with component/session/actor attributes and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text"})
//	orch := orchestrator.New(store, gateway, func(o *orchestrator.Options) { o.Logger = logger })
package logging
