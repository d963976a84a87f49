package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*AgentLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestAgentLogger_ScopedAttributes(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.WithComponent("dispatcher").WithConversation("conv-1", "req-1").Info("dispatch", "count", 2)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "dispatch", lines[0]["msg"])
	assert.Equal(t, "dispatcher", lines[0]["component"])
	assert.Equal(t, "conv-1", lines[0]["conversation_id"])
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.EqualValues(t, 2, lines[0]["count"])
}

func TestAgentLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "w", lines[0]["msg"])
}

func TestAgentLogger_WithIsCopy(t *testing.T) {
	base, buf := newBufferLogger(LogLevelInfo)
	_ = base.WithContext("k", "v")
	base.Info("plain")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "k")
}

func TestAgentLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.LogToolCall("rag_search", "call_1", time.Millisecond, true, nil)
	l.LogToolCall("rag_search", "call_2", time.Millisecond, false, errors.New("boom"))
	l.LogLLMCall("gpt-4o", 12, time.Second, true, nil)
	l.LogTurn(1, 2, time.Second, false)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "Tool execution completed", lines[0]["msg"])
	assert.Equal(t, "Tool execution failed", lines[1]["msg"])
	assert.Equal(t, "boom", lines[1]["error"])
	assert.Equal(t, "LLM call completed", lines[2]["msg"])
	assert.Equal(t, "Turn completed", lines[3]["msg"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Info("ignored", "k", "v")
}

type recordingLogger struct {
	NoOpLogger
	infos  []string
	errors []string
}

func (r *recordingLogger) Info(msg string, _ ...any)  { r.infos = append(r.infos, msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.errors = append(r.errors, msg) }

func TestPackageHelpers_PlainLogger(t *testing.T) {
	l := &recordingLogger{}
	ToolCall(l, "t", "c", time.Millisecond, nil)
	ToolCall(l, "t", "c", time.Millisecond, errors.New("x"))
	LLMCall(l, "m", 3, time.Millisecond, nil)
	Turn(l, 1, 0, time.Millisecond, true)

	assert.Equal(t, []string{"Tool execution completed", "LLM call completed", "Turn completed"}, l.infos)
	assert.Equal(t, []string{"Tool execution failed"}, l.errors)
}

func TestPackageHelpers_AgentLogger(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	ToolCall(l, "t", "c", time.Millisecond, nil)
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "c", lines[0]["tool_call_id"])
}
