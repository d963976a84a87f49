package testutil

import (
	"context"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
)

// ContextBuilder provides a fluent helper for constructing run and tool
// contexts in tests. Progress is recorded on a RecordingSink.
// Example:
//
//	tc, sink := NewContextBuilder().Conversation("conv-1").APIKey("k").ToolContext("rag_search", `{"request":"x"}`)
type ContextBuilder struct {
	ctx  context.Context
	opts core.RunOptions
	sink *core.RecordingSink
}

// NewContextBuilder creates a builder with a background context.
func NewContextBuilder() *ContextBuilder {
	sink := &core.RecordingSink{}
	return &ContextBuilder{
		ctx:  context.Background(),
		opts: core.RunOptions{RequestID: "req-test", Sink: sink},
		sink: sink,
	}
}

// Context sets the parent context (chainable).
func (b *ContextBuilder) Context(ctx context.Context) *ContextBuilder { b.ctx = ctx; return b }

// Conversation sets the conversation id (chainable).
func (b *ContextBuilder) Conversation(id string) *ContextBuilder {
	b.opts.ConversationID = id
	return b
}

// APIKey sets the caller credential (chainable).
func (b *ContextBuilder) APIKey(key string) *ContextBuilder { b.opts.APIKey = key; return b }

// MaxTurns bounds the tool loop (chainable).
func (b *ContextBuilder) MaxTurns(n int) *ContextBuilder { b.opts.MaxTurns = n; return b }

// Logger sets the logger (chainable).
func (b *ContextBuilder) Logger(l logging.Logger) *ContextBuilder { b.opts.Logger = l; return b }

// Sink returns the recording sink shared by every context the builder makes.
func (b *ContextBuilder) Sink() *core.RecordingSink { return b.sink }

// RunContext builds the RunContext.
func (b *ContextBuilder) RunContext() *core.RunContext {
	return core.NewRunContext(b.ctx, b.opts)
}

// ToolContext builds a ToolContext for one call with a freshly opened stage
// named after the tool.
func (b *ContextBuilder) ToolContext(name, args string) (*core.ToolContext, *core.RecordingSink) {
	rc := b.RunContext()
	call := core.ToolCall{ID: "call_" + name, Name: name, Arguments: args}
	return core.NewToolContext(rc, call, rc.OpenStage(name)), b.sink
}
