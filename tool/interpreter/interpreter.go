// Package interpreter wraps a remote code execution tool served over MCP.
// Files produced by the code are fetched from the server as resources,
// stored in DIAL storage and attached to the answer.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/dial"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/util"
	"github.com/ptacemic/ai-dial-general-purpose-agent/mcpclient"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// DefaultToolName is the execution tool exposed by the interpreter server.
const DefaultToolName = "execute_code"

// MaxOutputLen bounds each output entry handed back to the model.
const MaxOutputLen = 1000

// Session is the interpreter server connection.
type Session interface {
	ListTools(ctx context.Context) ([]mcpclient.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	ReadResource(ctx context.Context, uri string) (mcpclient.Resource, error)
}

// Storage persists produced files.
type Storage interface {
	Bucket(ctx context.Context, apiKey string) (string, error)
	Upload(ctx context.Context, apiKey, filePath, contentType string, data []byte) (string, error)
}

// Tool is the code interpreter capability.
type Tool struct {
	session Session
	storage Storage
	desc    mcpclient.ToolDescriptor
	now     func() time.Time
}

var (
	_ tool.Tool           = (*Tool)(nil)
	_ tool.StagePresenter = (*Tool)(nil)
)

// New finds toolName among the server's tools and wraps it. It fails when
// the server does not expose that tool.
func New(ctx context.Context, session Session, storage Storage, toolName string) (*Tool, error) {
	if toolName == "" {
		toolName = DefaultToolName
	}
	descs, err := session.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("interpreter: list tools: %w", err)
	}
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		if d.Name == toolName {
			return &Tool{session: session, storage: storage, desc: d, now: time.Now}, nil
		}
		names = append(names, d.Name)
	}
	return nil, fmt.Errorf("interpreter: server has no tool %q (available: %v)", toolName, names)
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return t.desc.Name }

// Description implements tool.Tool.
func (t *Tool) Description() string { return t.desc.Description }

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any { return t.desc.InputSchema }

// ShowInStage implements tool.StagePresenter; code is rendered as a block instead.
func (t *Tool) ShowInStage() bool { return false }

// Call implements tool.Tool.
func (t *Tool) Call(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
	ctx := tc.Context()
	stage := tc.Stage()

	stage.AppendContent("## Request arguments: \n")
	stage.AppendContent("```python\n\r" + util.StringArg(args, "code") + "\n\r```\n\r")
	if id := util.IntArg(args, "session_id", 0); id != 0 {
		stage.AppendContent(fmt.Sprintf("**session_id**: %d\n\r", id))
	} else {
		stage.AppendContent("New session will be created\n\r")
	}

	raw, err := t.session.CallTool(ctx, t.desc.Name, args)
	if err != nil {
		return tool.Result{}, err
	}
	if !gjson.Valid(raw) {
		stage.AppendContent("```text\n\r" + raw + "\n\r```\n\r")
		return tool.Text(raw), nil
	}

	var attachments []core.Attachment
	up := &uploader{t: t, tc: tc}
	for _, f := range gjson.Get(raw, "files").Array() {
		if a, ok := up.publish(f); ok {
			attachments = append(attachments, a)
		}
	}

	raw = truncateOutput(raw)
	stage.AppendContent("```json\n\r" + string(pretty.Pretty([]byte(raw))) + "\n\r```\n\r")
	return tool.Result{Content: raw, Attachments: attachments}, nil
}

// uploader stores produced files, resolving the caller's bucket once.
type uploader struct {
	t         *Tool
	tc        *core.ToolContext
	bucket    string
	bucketErr error
	resolved  bool
}

func (u *uploader) publish(f gjson.Result) (core.Attachment, bool) {
	ctx := u.tc.Context()
	stage := u.tc.Stage()
	name := f.Get("name").String()
	mime := f.Get("mime_type").String()
	uri := f.Get("uri").String()

	res, err := u.t.session.ReadResource(ctx, uri)
	if err != nil {
		if errors.Is(err, core.ErrSessionExpired) {
			stage.AppendContent(fmt.Sprintf("**Warning**: Session expired before file '%s' could be retrieved. "+
				"The file was generated but is no longer accessible. Please re-run the code to regenerate the file.\n\r", name))
		} else {
			stage.AppendContent(fmt.Sprintf("**Error**: Error retrieving file %s: %v\n\r", name, err))
		}
		u.tc.LogWarn("interpreter.resource_failed", "file", name, "uri", uri, "error", err.Error())
		return core.Attachment{}, false
	}
	data := res.Bytes()
	if len(data) == 0 {
		stage.AppendContent(fmt.Sprintf("**Warning**: Failed to retrieve file content for %s\n\r", name))
		return core.Attachment{}, false
	}
	if mime == "" {
		mime = res.MIMEType
	}

	a := core.Attachment{Type: mime, Title: name, URL: u.store(name, mime, data)}
	stage.AddAttachment(a)
	u.tc.PublishAttachment(a)
	return a, true
}

// store uploads data and returns its URL, falling back to a data URI.
func (u *uploader) store(name, mime string, data []byte) string {
	ctx := u.tc.Context()
	if u.t.storage != nil {
		if !u.resolved {
			u.bucket, u.bucketErr = u.t.storage.Bucket(ctx, u.tc.APIKey())
			u.resolved = true
		}
		if u.bucketErr == nil {
			url, err := u.t.storage.Upload(ctx, u.tc.APIKey(), dial.UploadPath(u.bucket, name, u.t.now()), mime, data)
			if err == nil {
				return url
			}
			u.tc.LogWarn("interpreter.upload_failed", "file", name, "error", err.Error())
		} else {
			u.tc.LogWarn("interpreter.bucket_failed", "error", u.bucketErr.Error())
		}
	}
	return dial.DataURI(mime, data)
}

// truncateOutput shortens every output entry longer than MaxOutputLen runes.
func truncateOutput(raw string) string {
	for i, o := range gjson.Get(raw, "output").Array() {
		s := o.String()
		if utf8.RuneCountInString(s) <= MaxOutputLen {
			continue
		}
		short := string([]rune(s)[:MaxOutputLen]) + "..."
		if updated, err := sjson.Set(raw, fmt.Sprintf("output.%d", i), short); err == nil {
			raw = updated
		}
	}
	return raw
}
