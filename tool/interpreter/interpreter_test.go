package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/testutil"
	"github.com/ptacemic/ai-dial-general-purpose-agent/mcpclient"
)

type fakeSession struct {
	result    string
	resources map[string]mcpclient.Resource
	readErr   map[string]error
	gotArgs   map[string]any
}

func (s *fakeSession) ListTools(context.Context) ([]mcpclient.ToolDescriptor, error) {
	return []mcpclient.ToolDescriptor{
		{Name: "list_files"},
		{Name: "execute_code", Description: "Runs Python", InputSchema: map[string]any{"type": "object"}},
	}, nil
}

func (s *fakeSession) CallTool(_ context.Context, _ string, args map[string]any) (string, error) {
	s.gotArgs = args
	return s.result, nil
}

func (s *fakeSession) ReadResource(_ context.Context, uri string) (mcpclient.Resource, error) {
	if err := s.readErr[uri]; err != nil {
		return mcpclient.Resource{}, err
	}
	return s.resources[uri], nil
}

type fakeStorage struct {
	bucketErr error
	uploadErr error
	uploads   []string
	buckets   int
}

func (s *fakeStorage) Bucket(context.Context, string) (string, error) {
	s.buckets++
	return "bkt", s.bucketErr
}

func (s *fakeStorage) Upload(_ context.Context, _, filePath, _ string, _ []byte) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.uploads = append(s.uploads, filePath)
	return filePath, nil
}

func newTool(t *testing.T, session *fakeSession, storage Storage) *Tool {
	t.Helper()
	it, err := New(context.Background(), session, storage, "")
	require.NoError(t, err)
	it.now = func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) }
	return it
}

func TestNew_MissingTool(t *testing.T) {
	_, err := New(context.Background(), &fakeSession{}, nil, "run_code")
	assert.ErrorContains(t, err, `no tool "run_code"`)
}

func TestCall_UploadsFilesAndTruncates(t *testing.T) {
	long := strings.Repeat("y", MaxOutputLen+5)
	session := &fakeSession{
		result: fmt.Sprintf(`{"success":true,"output":["short",%q],"files":[`+
			`{"name":"plot.png","mime_type":"image/png","uri":"files://plot.png"},`+
			`{"name":"data.csv","mime_type":"text/csv","uri":"files://data.csv"}],"session_id":7}`, long),
		resources: map[string]mcpclient.Resource{
			"files://plot.png": {Blob: []byte{0x89, 'P'}},
			"files://data.csv": {Text: "a,b", IsText: true},
		},
	}
	storage := &fakeStorage{}
	it := newTool(t, session, storage)
	assert.Equal(t, "execute_code", it.Name())
	assert.Equal(t, "Runs Python", it.Description())
	assert.False(t, it.ShowInStage())

	b := testutil.NewContextBuilder().APIKey("k")
	rc := b.RunContext()
	tc := core.NewToolContext(rc, testutil.Call("c1", "execute_code", ""), rc.OpenStage("execute_code"))
	args := map[string]any{"code": "print(1)", "session_id": float64(7)}
	res, err := it.Call(tc, args)
	require.NoError(t, err)
	assert.Equal(t, args, session.gotArgs)

	assert.Equal(t, []string{
		"files/bkt/uploads/2026-10/plot.png",
		"files/bkt/uploads/2026-10/data.csv",
	}, storage.uploads)
	assert.Equal(t, 1, storage.buckets)
	require.Len(t, res.Attachments, 2)
	assert.Equal(t, core.Attachment{Type: "image/png", Title: "plot.png", URL: "files/bkt/uploads/2026-10/plot.png"}, res.Attachments[0])
	assert.Equal(t, res.Attachments, rc.Attachments())

	out := gjson.Get(res.Content, "output").Array()
	require.Len(t, out, 2)
	assert.Equal(t, "short", out[0].String())
	assert.Equal(t, strings.Repeat("y", MaxOutputLen)+"...", out[1].String())
	assert.Equal(t, int64(7), gjson.Get(res.Content, "session_id").Int())

	stage := b.Sink().StageContent(0)
	assert.Contains(t, stage, "```python\n\rprint(1)\n\r```\n\r")
	assert.Contains(t, stage, "**session_id**: 7\n\r")
	assert.Contains(t, stage, "```json\n\r")
}

func TestCall_SessionExpiredAndDataURIFallback(t *testing.T) {
	session := &fakeSession{
		result: `{"output":[],"files":[` +
			`{"name":"gone.png","mime_type":"image/png","uri":"files://gone.png"},` +
			`{"name":"broken.txt","mime_type":"text/plain","uri":"files://broken.txt"},` +
			`{"name":"hi.txt","mime_type":"text/plain","uri":"files://hi.txt"}]}`,
		resources: map[string]mcpclient.Resource{"files://hi.txt": {Text: "hi", IsText: true}},
		readErr: map[string]error{
			"files://gone.png":   fmt.Errorf("read: %w", core.ErrSessionExpired),
			"files://broken.txt": errors.New("io failure"),
		},
	}
	it := newTool(t, session, &fakeStorage{bucketErr: errors.New("no bucket")})

	tc, sink := testutil.NewContextBuilder().ToolContext("execute_code", "")
	res, err := it.Call(tc, map[string]any{"code": "x"})
	require.NoError(t, err)
	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "data:text/plain;base64,aGk=", res.Attachments[0].URL)

	stage := sink.StageContent(0)
	assert.Contains(t, stage, "New session will be created")
	assert.Contains(t, stage, "**Warning**: Session expired before file 'gone.png'")
	assert.Contains(t, stage, "**Error**: Error retrieving file broken.txt: io failure")
}

func TestCall_NonJSONResult(t *testing.T) {
	it := newTool(t, &fakeSession{result: "plain failure text"}, nil)
	tc, _ := testutil.NewContextBuilder().ToolContext("execute_code", "")
	res, err := it.Call(tc, map[string]any{"code": "x"})
	require.NoError(t, err)
	assert.Equal(t, "plain failure text", res.Content)
}
