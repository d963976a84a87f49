package deployment

import (
	"errors"
	"strings"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// DefaultSearchDeployment is a chat deployment with built-in web search.
const DefaultSearchDeployment = "gpt-4o"

const searchUnavailable = "Web search is not available through this deployment tool. " +
	"The deployment rejected the web_search tool type. " +
	"Please inform the user that web search is currently unavailable, and proceed without it " +
	"or ask the user to provide the information directly."

// WebSearch answers queries with a deployment's built-in web search.
type WebSearch struct {
	*Tool
}

// NewWebSearch creates the web_search tool. An empty deployment uses
// DefaultSearchDeployment.
func NewWebSearch(m model.Model, deployment string) *WebSearch {
	if deployment == "" {
		deployment = DefaultSearchDeployment
	}
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "The search query or question to search for on the web. Be specific and clear about what information you need.",
			},
		},
		"required": []string{"prompt"},
	}
	return &WebSearch{Tool: New(m, deployment, "web_search",
		"Performs web search to find current information, news, facts, or any content from the internet. "+
			"Use this tool for current events, recent news, real-time data, or to verify information that "+
			"may have changed recently. Returns relevant results with sources.",
		params,
		func(o *Options) {
			o.Extra = map[string]any{"tools": []map[string]any{{"type": "web_search"}}}
		},
	)}
}

// Call implements tool.Tool. Only the prompt is sent; a content filter
// rejection is reported to the model as text.
func (w *WebSearch) Call(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
	comp, err := w.Complete(tc, map[string]any{PromptArg: args[PromptArg]})
	if err != nil {
		if isContentFilter(err) {
			tc.Stage().AppendContent(searchUnavailable)
			return tool.Text(searchUnavailable), nil
		}
		return tool.Result{}, err
	}
	return tool.Text(comp.Text), nil
}

func isContentFilter(err error) bool {
	var upstream *core.UpstreamProviderError
	msg := err.Error()
	if errors.As(err, &upstream) && upstream.Err != nil {
		msg = upstream.Err.Error()
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "content_filter") ||
		strings.Contains(lower, "safety system") ||
		strings.Contains(msg, "ResponsibleAIPolicyViolation")
}
