package testutil

import (
	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
)

// HistoryBuilder helps construct conversation histories with fluent chaining.
// Example:
//
//	msgs := NewHistoryBuilder().User("hi").Assistant("hello").User("draw a cat").Messages()
type HistoryBuilder struct {
	msgs []core.Message
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// System appends a system message (chainable).
func (b *HistoryBuilder) System(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewSystemMessage(text))
	return b
}

// User appends a user message (chainable).
func (b *HistoryBuilder) User(text string, attachments ...core.Attachment) *HistoryBuilder {
	m := core.NewUserMessage(text)
	m.Attachments = attachments
	b.msgs = append(b.msgs, m)
	return b
}

// Assistant appends a plain assistant message (chainable).
func (b *HistoryBuilder) Assistant(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage(text))
	return b
}

// AssistantWithState appends an assistant message carrying tool-call history
// state, as a client echoes it back (chainable).
func (b *HistoryBuilder) AssistantWithState(text string, toolHistory ...core.Message) *HistoryBuilder {
	m := core.NewAssistantMessage(text)
	m.State = &core.State{ToolCallHistory: toolHistory}
	b.msgs = append(b.msgs, m)
	return b
}

// ToolExchange appends an assistant tool call and its tool result (chainable).
func (b *HistoryBuilder) ToolExchange(id, name, args, result string) *HistoryBuilder {
	b.msgs = append(b.msgs,
		core.Message{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{Call(id, name, args)}},
		core.Message{Role: core.RoleTool, ToolCallID: id, Name: name, Content: result},
	)
	return b
}

// Messages returns a copy of the built messages.
func (b *HistoryBuilder) Messages() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}

// History returns the messages as a core.History.
func (b *HistoryBuilder) History() *core.History {
	return core.NewHistory(b.Messages()...)
}

// Call builds a tool call.
func Call(id, name, args string) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: args}
}
