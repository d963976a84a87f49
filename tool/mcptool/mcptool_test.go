package mcptool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/testutil"
	"github.com/ptacemic/ai-dial-general-purpose-agent/mcpclient"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) ListTools(ctx context.Context) ([]mcpclient.ToolDescriptor, error) {
	args := m.Called(ctx)
	descs, _ := args.Get(0).([]mcpclient.ToolDescriptor)
	return descs, args.Error(1)
}

func (m *mockClient) CallTool(ctx context.Context, name string, in map[string]any) (string, error) {
	args := m.Called(ctx, name, in)
	return args.String(0), args.Error(1)
}

func TestDiscoverAndCall(t *testing.T) {
	client := &mockClient{}
	client.On("ListTools", mock.Anything).Return([]mcpclient.ToolDescriptor{
		{Name: "search", Description: "web search", InputSchema: map[string]any{"type": "object"}},
		{Name: "fetch", Description: "fetch url"},
	}, nil)
	client.On("CallTool", mock.Anything, "search", map[string]any{"q": "go"}).Return("results", nil)

	tools, err := Discover(context.Background(), client)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "search", tools[0].Name())
	assert.Equal(t, "web search", tools[0].Description())
	assert.Equal(t, "object", tools[1].Parameters()["type"])

	tc, sink := testutil.NewContextBuilder().ToolContext("search", `{"q":"go"}`)
	res, err := tools[0].Call(tc, map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.Equal(t, "results", res.Content)
	assert.Equal(t, "```text\n\rresults\n\r```\n\r", sink.StageContent(0))
	client.AssertExpectations(t)
}

func TestCall_Error(t *testing.T) {
	client := &mockClient{}
	client.On("CallTool", mock.Anything, "fetch", mock.Anything).Return("", errors.New("unreachable"))

	tc, sink := testutil.NewContextBuilder().ToolContext("fetch", `{}`)
	_, err := New(client, mcpclient.ToolDescriptor{Name: "fetch"}).Call(tc, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, sink.StageContent(0), "Error calling MCP tool fetch: unreachable")
}

func TestDiscover_Error(t *testing.T) {
	client := &mockClient{}
	client.On("ListTools", mock.Anything).Return(nil, errors.New("down"))
	_, err := Discover(context.Background(), client)
	assert.ErrorContains(t, err, "down")
}
