package flow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

type teMockTool struct {
	name     string
	delay    time.Duration
	result   string
	err      error
	panicMsg any
	hideArgs bool
	running  *int32
	peak     *int32
}

func (mt *teMockTool) Name() string               { return mt.name }
func (mt *teMockTool) Description() string        { return "mock tool" }
func (mt *teMockTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (mt *teMockTool) ShowInStage() bool          { return !mt.hideArgs }
func (mt *teMockTool) Call(tc *core.ToolContext, _ map[string]any) (tool.Result, error) {
	if mt.running != nil {
		n := atomic.AddInt32(mt.running, 1)
		defer atomic.AddInt32(mt.running, -1)
		for {
			p := atomic.LoadInt32(mt.peak)
			if n <= p || atomic.CompareAndSwapInt32(mt.peak, p, n) {
				break
			}
		}
	}
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Context().Done():
			return tool.Result{}, tc.Context().Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	if mt.err != nil {
		return tool.Result{}, mt.err
	}
	tc.Stage().AppendContent(mt.result)
	return tool.Text(mt.result), nil
}

// callRecorder is a testify mock used to verify a tool is (not) invoked.
type callRecorder struct {
	mock.Mock
}

func (c *callRecorder) Name() string               { return "recorded" }
func (c *callRecorder) Description() string        { return "records calls" }
func (c *callRecorder) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (c *callRecorder) Call(_ *core.ToolContext, args map[string]any) (tool.Result, error) {
	ret := c.Called(args)
	return ret.Get(0).(tool.Result), ret.Error(1)
}

func newRunContext(sink core.ProgressSink) *core.RunContext {
	return core.NewRunContext(context.Background(), core.RunOptions{Sink: sink})
}

func TestDispatcher_PreservesOrderUnderReorderedDelays(t *testing.T) {
	reg := tool.MustRegistry(
		&teMockTool{name: "slow", delay: 60 * time.Millisecond, result: "slow"},
		&teMockTool{name: "medium", delay: 30 * time.Millisecond, result: "medium"},
		&teMockTool{name: "fast", result: "fast"},
	)
	calls := []core.ToolCall{
		{ID: "1", Name: "slow", Arguments: "{}"},
		{ID: "2", Name: "medium", Arguments: "{}"},
		{ID: "3", Name: "fast", Arguments: "{}"},
	}

	start := time.Now()
	results := NewDispatcher(reg).Dispatch(newRunContext(nil), calls)
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
		assert.Equal(t, calls[i].Name, r.Content)
		assert.False(t, r.IsError)
	}
	assert.Less(t, elapsed, 150*time.Millisecond, "calls should run concurrently")
}

func TestDispatcher_UnknownToolIsolated(t *testing.T) {
	rec := &callRecorder{}
	rec.On("Call", map[string]any{"x": float64(1)}).Return(tool.Text("ok"), nil).Once()

	sink := &core.RecordingSink{}
	results := NewDispatcher(tool.MustRegistry(rec)).Dispatch(newRunContext(sink), []core.ToolCall{
		{ID: "a", Name: "nope", Arguments: "{}"},
		{ID: "b", Name: "recorded", Arguments: `{"x":1}`},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "Error: Tool 'nope' not found", results[0].Content)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "ok", results[1].Content)
	assert.False(t, results[1].IsError)
	rec.AssertExpectations(t)

	assert.Equal(t, "Error: Tool 'nope' not found", sink.StageContent(0))
}

func TestDispatcher_ArgumentAndExecutionErrors(t *testing.T) {
	reg := tool.MustRegistry(
		&teMockTool{name: "ok", result: "fine"},
		&teMockTool{name: "fails", err: errors.New("boom")},
		&teMockTool{name: "panics", panicMsg: "kaput"},
	)
	results := NewDispatcher(reg).Dispatch(newRunContext(nil), []core.ToolCall{
		{ID: "1", Name: "ok", Arguments: `{"unterminated"`},
		{ID: "2", Name: "fails", Arguments: ``},
		{ID: "3", Name: "panics", Arguments: `{}`},
		{ID: "4", Name: "ok", Arguments: `{}`},
	})

	require.Len(t, results, 4)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "invalid arguments for tool 'ok'")
	assert.Equal(t, "Error: tool 'fails' failed: boom", results[1].Content)
	assert.Contains(t, results[2].Content, "panic recovered: kaput")
	assert.Equal(t, "fine", results[3].Content)
	assert.False(t, results[3].IsError)
}

func TestDispatcher_StagesShowArguments(t *testing.T) {
	reg := tool.MustRegistry(
		&teMockTool{name: "shown", result: "R"},
		&teMockTool{name: "hidden", result: "H", hideArgs: true},
	)
	sink := &core.RecordingSink{}
	NewDispatcher(reg).Dispatch(newRunContext(sink), []core.ToolCall{
		{ID: "1", Name: "shown", Arguments: `{"q":"cat"}`},
		{ID: "2", Name: "hidden", Arguments: `{"q":"dog"}`},
	})

	assert.Equal(t, "## Request arguments: \n```json\n{\n  \"q\": \"cat\"\n}\n```\n## Response: \nR", sink.StageContent(0))
	assert.Equal(t, "H", sink.StageContent(1))

	var opened, closed int
	for _, ev := range sink.Events() {
		switch ev.Kind {
		case core.EventStageOpen:
			opened++
		case core.EventStageClose:
			closed++
		}
	}
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, closed)
}

func TestDispatcher_MaxParallel(t *testing.T) {
	var running, peak int32
	mk := func(name string) tool.Tool {
		return &teMockTool{name: name, delay: 20 * time.Millisecond, result: name, running: &running, peak: &peak}
	}
	reg := tool.MustRegistry(mk("a"), mk("b"), mk("c"), mk("d"))
	d := NewDispatcher(reg, func(o *DispatcherOptions) { o.MaxParallel = 2 })

	results := d.Dispatch(newRunContext(nil), []core.ToolCall{
		{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}, {ID: "4", Name: "d"},
	})
	require.Len(t, results, 4)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDispatcher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc := core.NewRunContext(ctx, core.RunOptions{})

	rec := &callRecorder{}
	results := NewDispatcher(tool.MustRegistry(rec)).Dispatch(rc, []core.ToolCall{{ID: "1", Name: "recorded"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "context canceled")
	rec.AssertNotCalled(t, "Call", mock.Anything)
}

func TestDispatcher_Empty(t *testing.T) {
	assert.Nil(t, NewDispatcher(tool.MustRegistry()).Dispatch(newRunContext(nil), nil))
}
