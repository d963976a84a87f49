package flow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// DispatcherOptions configures the parallel dispatcher.
type DispatcherOptions struct {
	// MaxParallel bounds concurrent tool executions; 0 or <1 means no limit.
	MaxParallel int
	// LogStartEvents logs a start line per call.
	LogStartEvents bool
}

// Dispatcher executes the tool calls of one assistant turn concurrently and
// returns exactly one result per call, in call order. Failures of any kind
// (unknown tool, bad arguments, tool error, panic, cancellation) become error
// results for that call only; siblings are never affected.
type Dispatcher struct {
	registry *tool.Registry
	opts     DispatcherOptions
}

// NewDispatcher constructs a dispatcher over a registry.
func NewDispatcher(registry *tool.Registry, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{registry: registry, opts: opts}
}

// Dispatch runs calls and blocks until every call has a result.
func (d *Dispatcher) Dispatch(runCtx *core.RunContext, calls []core.ToolCall) []core.ToolResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	maxPar := d.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	// Stages are opened in call order so their numbering follows the turn.
	stages := make([]*core.Stage, n)
	for i, call := range calls {
		stages[i] = runCtx.OpenStage(call.Name)
	}

	results := make([]core.ToolResult, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		wg.Add(1)
		go func(idx int, call core.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				results[idx] = cancelledResult(runCtx, call, stages[idx])
				return
			}
			if runCtx.Err() != nil {
				results[idx] = cancelledResult(runCtx, call, stages[idx])
				return
			}

			results[idx] = d.execute(runCtx, call, stages[idx])
		}(i, calls[i])
	}

	wg.Wait()

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func cancelledResult(runCtx *core.RunContext, call core.ToolCall, stage *core.Stage) core.ToolResult {
	defer stage.Close()
	content := fmt.Sprintf("Error: tool '%s' was not run: %v", call.Name, runCtx.Err())
	stage.AppendContent(content)
	return errorResult(call, content)
}

func errorResult(call core.ToolCall, content string) core.ToolResult {
	return core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: content, IsError: true}
}

// execute runs one call inside its stage. It never panics.
func (d *Dispatcher) execute(runCtx *core.RunContext, call core.ToolCall, stage *core.Stage) core.ToolResult {
	defer stage.Close()

	impl, ok := d.registry.Lookup(call.Name)
	if !ok {
		content := fmt.Sprintf("Error: Tool '%s' not found", call.Name)
		stage.AppendContent(content)
		runCtx.LogWarn("agent.function.not_found", "function", call.Name, "function_call_id", call.ID,
			"error", core.ErrToolNotFound.Error())
		return errorResult(call, content)
	}

	args, err := parseArguments(call)
	if err != nil {
		content := "Error: " + err.Error()
		stage.AppendContent(content)
		runCtx.LogWarn("agent.function.bad_arguments", "function", call.Name, "function_call_id", call.ID, "error", err.Error())
		return errorResult(call, content)
	}

	if tool.ShowsArguments(impl) {
		stage.AppendContent("## Request arguments: \n")
		stage.AppendContent("```json\n" + prettyArguments(call.Arguments) + "\n```\n")
		stage.AppendContent("## Response: \n")
	}

	if d.opts.LogStartEvents {
		runCtx.LogInfo("agent.function.start", "function", call.Name, "function_call_id", call.ID)
	}

	toolCtx := core.NewToolContext(runCtx, call, stage)
	start := time.Now()
	var res tool.Result
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("agent.function.panic", "function", call.Name, "recover", r)
			}
		}()
		res, err = impl.Call(toolCtx, args)
	}()
	logging.ToolCall(runCtx.Logger(), call.Name, call.ID, time.Since(start), err)

	if err != nil {
		execErr := &core.ToolExecutionError{Tool: call.Name, Err: err}
		content := "Error: " + execErr.Error()
		stage.AppendContent(content)
		return errorResult(call, content)
	}

	return core.ToolResult{
		ToolCallID:  call.ID,
		Name:        call.Name,
		Content:     res.Content,
		Attachments: res.Attachments,
	}
}

// parseArguments decodes the raw argument text. Empty text means no arguments.
func parseArguments(call core.ToolCall) (map[string]any, error) {
	args := map[string]any{}
	if len(bytes.TrimSpace([]byte(call.Arguments))) == 0 {
		return args, nil
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return nil, &core.ToolArgumentError{Tool: call.Name, Err: err}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func prettyArguments(raw string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
