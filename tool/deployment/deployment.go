// Package deployment provides tools backed by another chat deployment: the
// tool's prompt argument becomes the user message, every other argument is
// forwarded as custom fields, and the deployment's streamed reply is shown in
// the tool's stage.
package deployment

import (
	"fmt"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/util"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// PromptArg is the argument carrying the user message.
const PromptArg = "prompt"

// Options configures a deployment Tool.
type Options struct {
	// SystemPrompt, when set, leads the conversation sent to the deployment.
	SystemPrompt string
	// Extra holds request body entries such as temperature or top_p.
	Extra map[string]any
}

// Tool calls a chat deployment.
type Tool struct {
	model       model.Model
	deployment  string
	name        string
	description string
	parameters  map[string]any
	opts        Options
}

var _ tool.Tool = (*Tool)(nil)

// New creates a Tool that sends requests to deployment through m.
func New(
	m model.Model,
	deployment, name, description string,
	parameters map[string]any,
	optFns ...func(o *Options),
) *Tool {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Tool{
		model:       m,
		deployment:  deployment,
		name:        name,
		description: description,
		parameters:  parameters,
		opts:        opts,
	}
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *Tool) Description() string { return t.description }

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any { return t.parameters }

// Deployment returns the target deployment name.
func (t *Tool) Deployment() string { return t.deployment }

// Call implements tool.Tool.
func (t *Tool) Call(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
	comp, err := t.Complete(tc, args)
	if err != nil {
		return tool.Result{}, err
	}
	return tool.Result{Content: comp.Text, Attachments: comp.Attachments}, nil
}

// Complete streams the deployment's reply into the stage and returns it.
func (t *Tool) Complete(tc *core.ToolContext, args map[string]any) (model.Completion, error) {
	req := t.Request(tc, args)
	stage := tc.Stage()
	comp, err := model.Collect(tc.Context(), t.model, req, stage.AppendContent, stage.AddAttachment)
	if err != nil {
		return comp, fmt.Errorf("deployment %s: %w", t.deployment, err)
	}
	return comp, nil
}

// Request builds the deployment request for args.
func (t *Tool) Request(tc *core.ToolContext, args map[string]any) model.Request {
	var custom map[string]any
	for k, v := range args {
		if k == PromptArg {
			continue
		}
		if custom == nil {
			custom = make(map[string]any, len(args))
		}
		custom[k] = v
	}
	return model.Request{
		Instructions: t.opts.SystemPrompt,
		Messages:     []core.Message{core.NewUserMessage(util.StringArg(args, PromptArg))},
		Deployment:   t.deployment,
		APIKey:       tc.APIKey(),
		CustomFields: custom,
		Extra:        t.opts.Extra,
	}
}
