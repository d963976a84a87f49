package model

import (
	"context"
	"errors"
	"testing"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText(t *testing.T) {
	frags := SplitText("héllo", 2)
	require.Len(t, frags, 3)
	assert.Equal(t, FragmentText{Text: "hé"}, frags[0])
	assert.Equal(t, FragmentText{Text: "o"}, frags[2])
	assert.Nil(t, SplitText("", 3))
}

func TestCollect(t *testing.T) {
	turn := TextTurn("a picture of a cat", 4)
	turn.Fragments = append(turn.Fragments,
		FragmentAttachment{Attachment: core.Attachment{Type: "image/png", URL: "files/cat.png"}},
		FragmentToolCall{Index: 0, ID: "ignored"},
	)
	m := NewScriptedModel("test", turn)

	var deltas []string
	var seen []core.Attachment
	out, err := Collect(context.Background(), m, Request{}, func(s string) { deltas = append(deltas, s) }, func(a core.Attachment) { seen = append(seen, a) })
	require.NoError(t, err)

	assert.Equal(t, "a picture of a cat", out.Text)
	assert.Len(t, deltas, 5)
	require.Len(t, out.Attachments, 1)
	assert.Equal(t, seen, out.Attachments)
	assert.Equal(t, 1, out.ToolCalls)
}

func TestCollect_Error(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel("test", ScriptedTurn{Fragments: SplitText("partial", 0), Err: boom})

	out, err := Collect(context.Background(), m, Request{}, nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", out.Text)
}

func TestScriptedModel_Exhausted(t *testing.T) {
	m := NewScriptedModel("test")
	_, err := Collect(context.Background(), m, Request{Deployment: "d"}, nil, nil)
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 1, m.Calls())
	assert.Equal(t, "d", m.Requests()[0].Deployment)
}

func TestScriptedModel_StopsOnCancel(t *testing.T) {
	m := NewScriptedModel("test", TextTurn("abcdef", 1))
	ctx, cancel := context.WithCancel(context.Background())
	fragCh, errCh := m.Stream(ctx, Request{})

	<-fragCh
	cancel()
	for range fragCh {
	}
	err := <-errCh
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestToolCallFragments(t *testing.T) {
	frags := ToolCallFragments(2, "call_1", "calc", `{"x":1}`)
	require.Len(t, frags, 3)
	var args string
	for _, f := range frags {
		tc := f.(FragmentToolCall)
		assert.Equal(t, 2, tc.Index)
		args += tc.Arguments
	}
	assert.Equal(t, `{"x":1}`, args)
}
