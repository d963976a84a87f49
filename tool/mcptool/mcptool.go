// Package mcptool exposes the tools of a Model Context Protocol server as
// agent capabilities.
package mcptool

import (
	"context"
	"fmt"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/mcpclient"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// Caller invokes a remote tool by name.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Lister enumerates remote tools.
type Lister interface {
	ListTools(ctx context.Context) ([]mcpclient.ToolDescriptor, error)
}

// Tool forwards calls to one remote tool.
type Tool struct {
	caller Caller
	desc   mcpclient.ToolDescriptor
}

var _ tool.Tool = (*Tool)(nil)

// New wraps the remote tool described by desc.
func New(caller Caller, desc mcpclient.ToolDescriptor) *Tool {
	return &Tool{caller: caller, desc: desc}
}

// Discover lists the server's tools and wraps each one. The client serves
// both as lister and caller.
func Discover(ctx context.Context, client interface {
	Lister
	Caller
}) ([]tool.Tool, error) {
	descs, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover mcp tools: %w", err)
	}
	out := make([]tool.Tool, 0, len(descs))
	for _, d := range descs {
		out = append(out, New(client, d))
	}
	return out, nil
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return t.desc.Name }

// Description implements tool.Tool.
func (t *Tool) Description() string { return t.desc.Description }

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any {
	if t.desc.InputSchema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return t.desc.InputSchema
}

// Call implements tool.Tool.
func (t *Tool) Call(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
	stage := tc.Stage()
	content, err := t.caller.CallTool(tc.Context(), t.desc.Name, args)
	if err != nil {
		stage.AppendContent(fmt.Sprintf("Error calling MCP tool %s: %v", t.desc.Name, err))
		return tool.Result{}, err
	}
	stage.AppendContent("```text\n\r" + content + "\n\r```\n\r")
	return tool.Text(content), nil
}
