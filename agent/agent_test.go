package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/testutil"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

func imageTool(calls *int) tool.Tool {
	return tool.NewFunctionTool("generate_image", "Generate an image", map[string]any{
		"type":       "object",
		"properties": map[string]any{"prompt": map[string]any{"type": "string"}},
	}, func(tc *core.ToolContext, args map[string]any) (any, error) {
		*calls++
		att := core.Attachment{Type: "image/png", URL: "files/cat.png", Title: "cat"}
		tc.PublishAttachment(att)
		return tool.Result{Content: "![image](files/cat.png)", Attachments: []core.Attachment{att}}, nil
	})
}

func drawCatModel() *model.ScriptedModel {
	toolTurn := model.ScriptedTurn{Fragments: append(
		model.SplitText("Drawing.", 3),
		model.ToolCallFragments(0, "call_1", "generate_image", `{"prompt":"cat"}`)...,
	)}
	return model.NewScriptedModel("test", toolTurn, model.TextTurn("Here is your cat.", 4))
}

func TestHandleRequest_DrawACat(t *testing.T) {
	m := drawCatModel()
	var calls int
	a := New(m, tool.MustRegistry(imageTool(&calls)), func(o *Options) {
		o.Instruction = NewInstructionFromText("be helpful")
		o.Deployment = "gpt-4o"
	})

	sink := &core.RecordingSink{}
	resp, err := a.HandleRequest(context.Background(), Request{
		ID:             "req-1",
		ConversationID: "conv-1",
		APIKey:         "key",
		Messages:       testutil.NewHistoryBuilder().User("draw a cat").Messages(),
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, 2, resp.Turns)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Here is your cat.", resp.Message.Content)
	require.Len(t, resp.Message.Attachments, 1)
	assert.Equal(t, "files/cat.png", resp.Message.Attachments[0].URL)
	assert.Equal(t, "Drawing.Here is your cat.", sink.Content())

	require.NotNil(t, resp.Message.State)
	hist := resp.Message.State.ToolCallHistory
	require.Len(t, hist, 2)
	assert.Equal(t, "call_1", hist[0].ToolCalls[0].ID)
	assert.Equal(t, "Drawing.", hist[0].Content)
	assert.Equal(t, "call_1", hist[1].ToolCallID)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, core.RoleSystem, reqs[0].Messages[0].Role)
	assert.Equal(t, "be helpful", reqs[0].Messages[0].Content)
	assert.Equal(t, "gpt-4o", reqs[0].Deployment)
	assert.Equal(t, "key", reqs[0].APIKey)
	assert.Len(t, reqs[0].Tools, 1)
	assert.Len(t, reqs[1].Messages, 4)
	assert.Equal(t, 0, a.Active())
}

func TestHandleRequest_EchoedStateIsRestored(t *testing.T) {
	first := drawCatModel()
	var calls int
	registry := tool.MustRegistry(imageTool(&calls))
	resp, err := New(first, registry).HandleRequest(context.Background(), Request{
		Messages: testutil.NewHistoryBuilder().User("draw a cat").Messages(),
	}, nil)
	require.NoError(t, err)

	second := model.NewScriptedModel("test", model.TextTurn("It is orange.", 0))
	msgs := testutil.NewHistoryBuilder().User("draw a cat").Messages()
	msgs = append(msgs, resp.Message)
	msgs = append(msgs, core.NewUserMessage("what color is it?"))

	resp2, err := New(second, registry, func(o *Options) { o.Instruction = Instruction{} }).
		HandleRequest(context.Background(), Request{Messages: msgs}, nil)
	require.NoError(t, err)
	assert.Equal(t, "It is orange.", resp2.Message.Content)
	assert.Empty(t, resp2.Message.State.ToolCallHistory)
	assert.Equal(t, 1, resp2.Turns)

	sent := second.Requests()[0].Messages
	require.Len(t, sent, 5)
	assert.Equal(t, core.RoleUser, sent[0].Role)
	assert.Equal(t, "call_1", sent[1].ToolCalls[0].ID)
	assert.Equal(t, core.RoleTool, sent[2].Role)
	assert.Equal(t, "Here is your cat.", sent[3].Content)
	assert.Nil(t, sent[3].State)
	assert.Equal(t, "what color is it?", sent[4].Content)
}

func TestHandleRequest_RequestDeploymentWins(t *testing.T) {
	m := model.NewScriptedModel("test", model.TextTurn("ok", 0))
	a := New(m, nil, func(o *Options) { o.Deployment = "gpt-4o" })
	_, err := a.HandleRequest(context.Background(), Request{
		Deployment: "claude-sonnet-3-7",
		Messages:   []core.Message{core.NewUserMessage("hi")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-3-7", m.Requests()[0].Deployment)
}

func TestHandleRequest_EmptyConversation(t *testing.T) {
	a := New(model.NewScriptedModel("test"), nil)
	_, err := a.HandleRequest(context.Background(), Request{}, nil)
	assert.ErrorIs(t, err, ErrEmptyConversation)
}

func TestHandleRequest_InstructionError(t *testing.T) {
	m := model.NewScriptedModel("test", model.TextTurn("ok", 0))
	a := New(m, nil, func(o *Options) {
		o.Instruction = NewInstructionFromProvider(mockProvider{err: errors.New("no prompt")})
	})
	_, err := a.HandleRequest(context.Background(), Request{Messages: []core.Message{core.NewUserMessage("hi")}}, nil)
	assert.ErrorContains(t, err, "no prompt")
	assert.Equal(t, 0, m.Calls())
}

func TestHandleRequest_TurnLimit(t *testing.T) {
	loop := model.ScriptedTurn{Fragments: model.ToolCallFragments(0, "", "generate_image", `{}`)}
	m := model.NewScriptedModel("test", loop, loop, loop)
	var calls int
	a := New(m, tool.MustRegistry(imageTool(&calls)), func(o *Options) { o.MaxTurns = 2 })
	_, err := a.HandleRequest(context.Background(), Request{Messages: []core.Message{core.NewUserMessage("hi")}}, nil)
	assert.ErrorIs(t, err, core.ErrTurnLimitExceeded)
	assert.Equal(t, 2, calls)
}

func TestCancel(t *testing.T) {
	slow := model.ScriptedTurn{Fragments: model.SplitText("zzz", 1), Delay: time.Minute}
	a := New(model.NewScriptedModel("test", slow), nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := a.HandleRequest(context.Background(), Request{
			ID:       "r1",
			Messages: []core.Message{core.NewUserMessage("hi")},
		}, nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return a.Active() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, a.Cancel("other"))
	assert.True(t, a.Cancel("r1"))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("request was not cancelled")
	}
	assert.Equal(t, 0, a.Active())
}

func TestMaxConcurrentRequests(t *testing.T) {
	slow := model.ScriptedTurn{Fragments: model.SplitText("zzz", 1), Delay: time.Minute}
	a := New(model.NewScriptedModel("test", slow), nil, func(o *Options) { o.MaxConcurrentRequests = 1 })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.HandleRequest(context.Background(), Request{ID: "busy", Messages: []core.Message{core.NewUserMessage("hi")}}, nil)
	}()
	require.Eventually(t, func() bool { return a.Active() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.HandleRequest(ctx, Request{Messages: []core.Message{core.NewUserMessage("hi")}}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	a.Cancel("busy")
	<-done
}
