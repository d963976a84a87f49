// Package logging provides a minimal logging interface and adapters for the agent.
//
// The Logger interface defines the standard leveled methods (Debug, Info, Warn, Error)
// that the orchestrator, dispatcher, capabilities and the tool-provider client use
// for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - AgentLogger with request scoped attributes and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	a := agent.New(m, registry, agent.WithLogger(logger))
package logging
