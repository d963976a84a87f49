package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/testutil"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(*core.RunContext) (string, error) { return m.text, m.err }

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(testutil.NewContextBuilder().RunContext())
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "dynamic"})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(testutil.NewContextBuilder().RunContext())
	require.NoError(t, err)
	assert.Equal(t, "dynamic", got)
}

func TestInstruction_ProviderError(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{err: errors.New("boom")})
	_, err := inst.Resolve(testutil.NewContextBuilder().RunContext())
	assert.EqualError(t, err, "boom")
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		return "conversation " + rc.ConversationID, nil
	})
	got, err := inst.Resolve(testutil.NewContextBuilder().Conversation("c-9").RunContext())
	require.NoError(t, err)
	assert.Equal(t, "conversation c-9", got)
}

func TestInstruction_ZeroValue(t *testing.T) {
	var inst Instruction
	assert.True(t, inst.IsStatic())
	got, err := inst.Resolve(testutil.NewContextBuilder().RunContext())
	require.NoError(t, err)
	assert.Empty(t, got)
}
