// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (streaming + tool calling). It targets DIAL deployments
// (deployment scoped base URL, Api-Key header, api-version query and the
// custom_fields / custom_content extensions) and plain OpenAI alike.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
)

// DefaultAPIVersion is the DIAL api-version used when none is configured.
const DefaultAPIVersion = "2025-01-01-preview"

// Options configure the OpenAI model adapter.
type Options struct {
	// Model is the default deployment (DIAL) or model id (OpenAI).
	Model string
	// Endpoint is the DIAL core base URL. When empty the client's own base
	// URL is used and requests follow the plain OpenAI layout.
	Endpoint string
	// APIVersion is sent as the api-version query parameter to DIAL.
	APIVersion string
	// APIKey is the default credential; Request.APIKey overrides it.
	APIKey string
	// Temperature is only sent when > 0.
	Temperature float64
	// MaxCompletionTokens is only sent when > 0.
	MaxCompletionTokens int64
	// RequestOptions are appended to every call.
	RequestOptions []option.RequestOption
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:      openai.ChatModelGPT4o,
		APIVersion: DefaultAPIVersion,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Stream implements model.Model.
func (m *Model) Stream(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		stream := m.client.Chat.Completions.NewStreaming(ctx, params, m.requestOptions(req)...)
		defer stream.Close()

		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if !emitChoice(ctx, ch, out) {
					errCh <- ctx.Err()
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()
	return out, errCh
}

func (m *Model) deployment(req model.Request) string {
	if req.Deployment != "" {
		return req.Deployment
	}
	return m.opts.Model
}

// requestOptions builds the per-call options: DIAL routing and credentials,
// plus the custom_fields extension.
func (m *Model) requestOptions(req model.Request) []option.RequestOption {
	var opts []option.RequestOption
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = m.opts.APIKey
	}
	if m.opts.Endpoint != "" {
		base := strings.TrimRight(m.opts.Endpoint, "/") + "/openai/deployments/" + m.deployment(req) + "/"
		opts = append(opts, option.WithBaseURL(base))
		if m.opts.APIVersion != "" {
			opts = append(opts, option.WithQuery("api-version", m.opts.APIVersion))
		}
		if apiKey != "" {
			opts = append(opts, option.WithHeader("Api-Key", apiKey))
		}
	} else if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if len(req.CustomFields) > 0 {
		opts = append(opts, option.WithJSONSet("custom_fields", req.CustomFields))
	}
	opts = append(opts, extraOptions(req.Extra)...)
	return append(opts, m.opts.RequestOptions...)
}

func extraOptions(extra map[string]any) []option.RequestOption {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	opts := make([]option.RequestOption, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, option.WithJSONSet(k, extra[k]))
	}
	return opts
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(req),
		Model:    m.deployment(req),
	}
	if m.opts.Temperature > 0 {
		params.Temperature = openai.Float(m.opts.Temperature)
	}
	if m.opts.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.opts.MaxCompletionTokens)
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// buildMessages converts history entries into OpenAI chat messages.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toToolCallParams(msg.ToolCalls),
			}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(toolContent(msg), msg.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(userContent(msg)))
		}
	}
	return messages
}

func toToolCallParams(calls []core.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	out := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, tc := range calls {
		out[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		}
	}
	return out
}

// userContent renders attachments as a trailing file list so the model can
// reference them by URL in tool calls.
func userContent(msg core.Message) string {
	if len(msg.Attachments) == 0 {
		return msg.Content
	}
	var b strings.Builder
	b.WriteString(msg.Content)
	b.WriteString("\n\nAttached files:")
	for _, a := range msg.Attachments {
		title := a.Title
		if title == "" {
			title = a.URL
		}
		fmt.Fprintf(&b, "\n- %s (%s, url: %s)", title, a.Type, a.URL)
	}
	return b.String()
}

func toolContent(msg core.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	if len(msg.Attachments) > 0 {
		return userContent(msg)
	}
	return ""
}

// emitChoice decodes one streamed choice into fragments. It returns false when
// ctx was cancelled while sending.
func emitChoice(ctx context.Context, ch openai.ChatCompletionChunkChoice, out chan<- model.Fragment) bool {
	if ch.Delta.Content != "" {
		if !model.Send(ctx, out, model.FragmentText{Text: ch.Delta.Content}) {
			return false
		}
	}
	for _, tc := range ch.Delta.ToolCalls {
		frag := model.FragmentToolCall{
			Index:     int(tc.Index),
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}
		if !model.Send(ctx, out, frag) {
			return false
		}
	}
	for _, a := range decodeAttachments(ch.Delta.RawJSON()) {
		if !model.Send(ctx, out, model.FragmentAttachment{Attachment: a}) {
			return false
		}
	}
	return true
}

// decodeAttachments extracts DIAL custom_content attachments from a raw delta.
func decodeAttachments(raw string) []core.Attachment {
	if raw == "" {
		return nil
	}
	res := gjson.Get(raw, "custom_content.attachments")
	if !res.IsArray() {
		return nil
	}
	var out []core.Attachment
	res.ForEach(func(_, v gjson.Result) bool {
		a := core.Attachment{
			Type:  v.Get("type").String(),
			URL:   v.Get("url").String(),
			Title: v.Get("title").String(),
		}
		if a.URL == "" && v.Get("data").Exists() {
			a.URL = "data:" + a.Type + ";base64," + v.Get("data").String()
		}
		out = append(out, a)
		return true
	})
	return out
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
