// Package tool implements the capability subsystem: named, schema-described
// tools the model may invoke, the immutable registry that routes calls to
// them, and adapters exposing plain Go functions as tools.
package tool

import (
	"encoding/json"
	"fmt"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/util"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
)

// Tool defines the interface for extending the agent with external capabilities.
//
// Call receives the parsed request arguments and a ToolContext exposing the
// call id, caller credentials, the conversation scope, a private progress stage
// and the ability to publish attachments on the final answer.
//
// Call returns either a Result or an error. The error arm is converted by the
// dispatcher into an error result for the model; it never aborts sibling calls
// or the request. Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool.
	Call(toolCtx *core.ToolContext, args map[string]any) (Result, error)
}

// StagePresenter is implemented by tools that control whether the dispatcher
// prints their request arguments into the progress stage. Tools that do not
// implement it show their arguments.
type StagePresenter interface {
	ShowInStage() bool
}

// ShowsArguments reports whether the dispatcher should print t's arguments.
func ShowsArguments(t Tool) bool {
	if sp, ok := t.(StagePresenter); ok {
		return sp.ShowInStage()
	}
	return true
}

// Result is the successful outcome of a tool call.
type Result struct {
	// Content is the text handed back to the model.
	Content string `json:"content"`
	// Attachments travel with the tool message in history.
	Attachments []core.Attachment `json:"attachments,omitempty"`
}

// Text builds a plain text result.
func Text(s string) Result { return Result{Content: s} }

// JSON builds a result from any JSON-serializable value. Strings are kept as is.
func JSON(v any) (Result, error) {
	switch val := v.(type) {
	case nil:
		return Result{}, nil
	case string:
		return Text(val), nil
	case Result:
		return val, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("encode tool result: %w", err)
	}
	return Text(string(b)), nil
}

// Definition renders the model-facing declaration of t.
func Definition(t Tool) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
