package model

import (
	"context"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
)

// Fragment is one decoded increment of a streamed provider response. It is a
// closed set: FragmentText, FragmentToolCall and FragmentAttachment.
type Fragment interface {
	isFragment()
}

// FragmentText carries a piece of the assistant's answer text.
type FragmentText struct {
	Text string
}

// FragmentToolCall carries an increment for the tool call in slot Index.
// ID and Name are optional on any given increment; Arguments is a piece of
// the argument text to be concatenated in arrival order.
type FragmentToolCall struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// FragmentAttachment carries an attachment produced by the provider itself
// (e.g. an image returned by an image generation deployment).
type FragmentAttachment struct {
	Attachment core.Attachment
}

func (FragmentText) isFragment()       {}
func (FragmentToolCall) isFragment()   {}
func (FragmentAttachment) isFragment() {}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the orchestrator
// and by deployment-backed tools.
type Request struct {
	// Instructions, when set, is sent as the leading system message.
	Instructions string `json:"instructions,omitempty"`
	// Messages is the provider-visible history.
	Messages []core.Message `json:"messages"`
	// Tools lists the functions the model may call.
	Tools []ToolDefinition `json:"tools,omitempty"`
	// Deployment overrides the model's configured deployment/model id.
	Deployment string `json:"deployment,omitempty"`
	// APIKey overrides the model's configured credential for this call.
	APIKey string `json:"-"`
	// CustomFields is forwarded as the provider specific custom_fields body entry.
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	// Extra holds additional top-level body entries such as sampling
	// parameters or provider specific tool types.
	Extra map[string]any `json:"extra,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the orchestrator and tools to
// drive generation.
//
// Stream starts one provider call. Fragments are delivered in arrival order on
// the first channel; at most one error is delivered on the second. Both
// channels are closed when the call ends. Implementations must stop producing
// when ctx is cancelled.
type Model interface {
	Stream(ctx context.Context, req Request) (<-chan Fragment, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Completion is the drained content of a stream.
type Completion struct {
	Text        string
	Attachments []core.Attachment
	ToolCalls   int
}

// Collect drains one stream into text and attachments. onText, if non-nil, is
// invoked for every text increment as it arrives, and onAttachment for every
// attachment. Tool call fragments are counted but otherwise ignored.
func Collect(
	ctx context.Context,
	m Model,
	req Request,
	onText func(string),
	onAttachment func(core.Attachment),
) (Completion, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fragCh, errCh := m.Stream(ctx, req)

	var (
		out  Completion
		text []byte
	)
	for frag := range fragCh {
		switch f := frag.(type) {
		case FragmentText:
			text = append(text, f.Text...)
			if onText != nil {
				onText(f.Text)
			}
		case FragmentAttachment:
			out.Attachments = append(out.Attachments, f.Attachment)
			if onAttachment != nil {
				onAttachment(f.Attachment)
			}
		case FragmentToolCall:
			out.ToolCalls++
		}
	}
	out.Text = string(text)
	if err := <-errCh; err != nil {
		return out, err
	}
	return out, nil
}

// Send delivers a fragment unless ctx is done. Providers use it so an
// abandoned stream never blocks its producer goroutine.
func Send(ctx context.Context, out chan<- Fragment, frag Fragment) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- frag:
		return true
	}
}
