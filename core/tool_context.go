package core

import (
	"context"

	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
)

// ToolContext provides the constrained surface a capability sees while
// executing one tool call: cancellation, caller credentials, conversation
// scope, its own progress stage and the ability to publish attachments on the
// final answer.
type ToolContext struct {
	runCtx *RunContext
	call   ToolCall
	stage  *Stage

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext, the
// originating call and the stage opened for it. A nil stage is replaced by a
// detached one that discards output.
func NewToolContext(runCtx *RunContext, call ToolCall, stage *Stage) *ToolContext {
	if stage == nil {
		stage = newStage(-1, call.Name, runCtx.RequestID, NopSink{})
	}
	return &ToolContext{
		runCtx:        runCtx,
		call:          call,
		stage:         stage,
		loggerAdapter: newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RequestID returns the request the tool call belongs to.
func (tc *ToolContext) RequestID() string { return tc.runCtx.RequestID }

// ConversationID returns the conversation scope used to partition cached artifacts.
func (tc *ToolContext) ConversationID() string { return tc.runCtx.ConversationID }

// APIKey returns the caller credential.
func (tc *ToolContext) APIKey() string { return tc.runCtx.APIKey }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the id of the tool call being executed.
func (tc *ToolContext) FunctionCallID() string { return tc.call.ID }

// ToolName returns the name of the tool being executed.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// RawArguments returns the argument text exactly as streamed.
func (tc *ToolContext) RawArguments() string { return tc.call.Arguments }

// Stage returns the progress stage of this tool call.
func (tc *ToolContext) Stage() *Stage { return tc.stage }

// PublishAttachment adds an attachment to the final answer of the request.
func (tc *ToolContext) PublishAttachment(a Attachment) {
	tc.runCtx.PublishAttachment(a)
	tc.LogDebug("tool.attachment.published", "tool", tc.call.Name, "function_call_id", tc.call.ID, "type", a.Type)
}

// RunContext returns the parent run context.
func (tc *ToolContext) RunContext() *RunContext { return tc.runCtx }
