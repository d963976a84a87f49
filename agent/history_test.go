package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/testutil"
)

func TestUnpack_RestoresToolHistory(t *testing.T) {
	exchange := testutil.NewHistoryBuilder().
		ToolExchange("call_1", "generate_image", `{"prompt":"cat"}`, "![image](files/cat.png)").
		Messages()

	in := testutil.NewHistoryBuilder().
		User("draw a cat").
		AssistantWithState("Here is your cat.", exchange...).
		User("now a dog").
		Messages()

	out := Unpack(in)
	require.Len(t, out, 5)
	assert.Equal(t, core.RoleUser, out[0].Role)
	assert.Equal(t, core.RoleAssistant, out[1].Role)
	assert.Equal(t, "call_1", out[1].ToolCalls[0].ID)
	assert.Equal(t, core.RoleTool, out[2].Role)
	assert.Equal(t, "Here is your cat.", out[3].Content)
	assert.Nil(t, out[3].State)
	assert.Equal(t, "now a dog", out[4].Content)

	assert.NotNil(t, in[1].State, "input must not be modified")
}

func TestUnpack_PlainConversation(t *testing.T) {
	in := testutil.NewHistoryBuilder().User("hi").Assistant("hello").User("bye").Messages()
	assert.Equal(t, in, Unpack(in))
}

func TestUnpack_EmptyState(t *testing.T) {
	in := testutil.NewHistoryBuilder().AssistantWithState("ok").Messages()
	out := Unpack(in)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].State)
}

func TestToolExchanges(t *testing.T) {
	msgs := testutil.NewHistoryBuilder().
		ToolExchange("call_1", "web_search", `{"prompt":"x"}`, "result").
		Assistant("final").
		Messages()
	got := toolExchanges(msgs)
	require.Len(t, got, 2)
	assert.Equal(t, core.RoleTool, got[1].Role)
}
