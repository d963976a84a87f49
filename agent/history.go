package agent

import "github.com/ptacemic/ai-dial-general-purpose-agent/core"

// Unpack expands the conversation a client sent into the provider-visible
// history: every assistant reply that carries a State is preceded by the tool
// exchanges recorded in it. The State itself is stripped. Input messages are
// not modified.
func Unpack(messages []core.Message) []core.Message {
	out := make([]core.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == core.RoleAssistant && msg.State != nil {
			out = append(out, msg.State.ToolCallHistory...)
			msg.State = nil
		}
		out = append(out, msg)
	}
	return out
}

// toolExchanges keeps the assistant tool-call turns and tool results of msgs.
func toolExchanges(msgs []core.Message) []core.Message {
	var out []core.Message
	for _, m := range msgs {
		if m.Role == core.RoleTool || (m.Role == core.RoleAssistant && len(m.ToolCalls) > 0) {
			out = append(out, m)
		}
	}
	return out
}
