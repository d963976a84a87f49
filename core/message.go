package core

import (
	"sync"

	"github.com/google/uuid"
)

// Conversation roles understood by every provider adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Attachment is a file reference carried next to message content (generated
// images, interpreter outputs, uploaded documents).
type Attachment struct {
	Type  string `json:"type,omitempty"`  // MIME type, e.g. image/png
	URL   string `json:"url,omitempty"`   // storage URL or data: URI
	Title string `json:"title,omitempty"` // display name
}

// ToolCall is one named, argument-bearing action requested by the model.
// Arguments holds the raw argument text exactly as streamed; it is parsed by
// the dispatcher so malformed JSON is attributed to this call only.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// AssistantTurn is the structured result of folding one provider stream.
type AssistantTurn struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// IsTerminal reports whether the turn ends the conversation loop.
func (t AssistantTurn) IsTerminal() bool { return len(t.ToolCalls) == 0 }

// Message converts the turn into an assistant history entry.
func (t AssistantTurn) Message() Message {
	calls := make([]ToolCall, len(t.ToolCalls))
	copy(calls, t.ToolCalls)
	return Message{Role: RoleAssistant, Content: t.Text, ToolCalls: calls}
}

// ToolResult is the outcome of one dispatched tool call.
type ToolResult struct {
	ToolCallID  string       `json:"tool_call_id"`
	Name        string       `json:"name"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	IsError     bool         `json:"is_error,omitempty"`
}

// Message converts the result into a tool history entry.
func (r ToolResult) Message() Message {
	return Message{
		Role:        RoleTool,
		Name:        r.Name,
		ToolCallID:  r.ToolCallID,
		Content:     r.Content,
		Attachments: r.Attachments,
		IsError:     r.IsError,
	}
}

// State is the opaque payload an assistant reply carries back to the client.
// Clients echo it on the next request so earlier tool exchanges can be
// restored into the provider-visible history.
type State struct {
	ToolCallHistory []Message `json:"tool_call_history,omitempty"`
}

// Message is a role-tagged conversation entry.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	Name        string       `json:"name,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolCallID  string       `json:"tool_call_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	State       *State       `json:"state,omitempty"`
	// IsError marks a tool entry whose call failed.
	IsError bool `json:"is_error,omitempty"`
}

// NewSystemMessage creates a system instruction entry.
func NewSystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// NewUserMessage creates a user entry.
func NewUserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// NewAssistantMessage creates a plain assistant entry.
func NewAssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// History is the ordered, append-only conversation owned by one orchestrator
// run. Appends are synchronized; readers receive snapshots.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory seeds a history with the given messages (copied).
func NewHistory(msgs ...Message) *History {
	h := &History{messages: make([]Message, 0, len(msgs))}
	h.messages = append(h.messages, msgs...)
	return h
}

// Append adds messages at the end of the history.
func (h *History) Append(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Messages returns a snapshot of the history.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Since returns a snapshot of the entries appended after the first n.
func (h *History) Since(n int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n >= len(h.messages) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	out := make([]Message, len(h.messages)-n)
	copy(out, h.messages[n:])
	return out
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

// NewToolCallID generates a provider-style identifier for tool calls whose
// stream never carried one.
func NewToolCallID() string { return "call_" + uuid.NewString() }
