package core

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamProtocol marks a malformed provider stream. Fatal to the turn.
	ErrStreamProtocol = errors.New("stream protocol violation")

	// ErrToolNotFound is returned when a tool call names an unregistered capability.
	ErrToolNotFound = errors.New("tool not found")

	// ErrSessionExpired is returned when the external tool-provider session
	// expired before a follow-up request (e.g. a resource fetch) was issued.
	ErrSessionExpired = errors.New("session expired")

	// ErrTurnLimitExceeded is returned when the model keeps requesting tools
	// beyond the configured number of turns.
	ErrTurnLimitExceeded = errors.New("turn limit exceeded")
)

// StreamProtocolError describes a protocol violation observed while folding
// stream fragments.
type StreamProtocolError struct {
	Slot    int
	Message string
}

func (e *StreamProtocolError) Error() string {
	return fmt.Sprintf("stream protocol violation at slot %d: %s", e.Slot, e.Message)
}

// Unwrap allows errors.Is(err, ErrStreamProtocol).
func (e *StreamProtocolError) Unwrap() error { return ErrStreamProtocol }

// ToolArgumentError reports unparsable argument text for a single tool call.
type ToolArgumentError struct {
	Tool string
	Err  error
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool '%s': %v", e.Tool, e.Err)
}

func (e *ToolArgumentError) Unwrap() error { return e.Err }

// ToolExecutionError wraps any failure raised inside a capability.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool '%s' failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// UpstreamProviderError wraps a failure calling the chat provider itself.
// It terminates the request.
type UpstreamProviderError struct {
	Provider string
	Err      error
}

func (e *UpstreamProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("upstream provider error: %v", e.Err)
	}
	return fmt.Sprintf("upstream provider %s error: %v", e.Provider, e.Err)
}

func (e *UpstreamProviderError) Unwrap() error { return e.Err }
