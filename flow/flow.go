// Package flow implements the turn loop of the agent: folding a provider
// stream into an assistant turn (Aggregator), executing the turn's tool calls
// (Dispatcher) and repeating until the model answers without requesting tools
// (Flow).
package flow

import (
	"context"
	"time"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// Options configures a Flow.
type Options struct {
	// Instructions is sent as the leading system message of every provider call.
	Instructions string
	// Deployment overrides the model's configured deployment.
	Deployment string
	// Dispatcher tunes tool execution.
	Dispatcher DispatcherOptions
}

// Flow is the turn orchestrator. It is stateless between runs and safe to
// share across concurrent requests; each run owns its RunContext and History.
//
// A run alternates between awaiting the model and dispatching tools:
//
//	AwaitingModel --(turn with tool calls)--> dispatch --> AwaitingModel
//	AwaitingModel --(turn without tool calls)--> Done
//
// Stream protocol violations, provider failures, cancellation and exceeding
// the run's turn limit end the run with an error.
type Flow struct {
	model      model.Model
	registry   *tool.Registry
	dispatcher *Dispatcher
	opts       Options
}

// New creates a Flow over a model and a tool registry.
func New(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Flow {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if registry == nil {
		registry = tool.MustRegistry()
	}
	return &Flow{
		model:    m,
		registry: registry,
		dispatcher: NewDispatcher(registry, func(o *DispatcherOptions) {
			*o = opts.Dispatcher
		}),
		opts: opts,
	}
}

// Registry returns the registry the flow dispatches against.
func (f *Flow) Registry() *tool.Registry { return f.registry }

// Run drives the conversation in history to completion. Assistant turns and
// tool results are appended to history as they happen; the final assistant
// message (carrying every attachment published during the run) is appended
// and returned.
func (f *Flow) Run(runCtx *core.RunContext, history *core.History) (*core.Message, error) {
	for {
		if err := runCtx.Err(); err != nil {
			return nil, err
		}
		if err := runCtx.Limiter.Increment(); err != nil {
			runCtx.LogWarn("agent.turn.limit", "turns", runCtx.Limiter.Count()-1, "error", err.Error())
			return nil, err
		}

		start := time.Now()
		turn, err := f.awaitModel(runCtx, history)
		if err != nil {
			return nil, err
		}
		logging.Turn(runCtx.Logger(), runCtx.Limiter.Count(), len(turn.ToolCalls), time.Since(start), turn.IsTerminal())

		if turn.IsTerminal() {
			final := core.NewAssistantMessage(turn.Text)
			final.Attachments = runCtx.Attachments()
			history.Append(final)
			return &final, nil
		}

		history.Append(turn.Message())
		for _, res := range f.dispatcher.Dispatch(runCtx, turn.ToolCalls) {
			history.Append(res.Message())
		}
	}
}

// awaitModel performs one provider call and folds its stream. Text increments
// are forwarded to the progress sink as they arrive; provider attachments are
// published to the final answer.
func (f *Flow) awaitModel(runCtx *core.RunContext, history *core.History) (core.AssistantTurn, error) {
	ctx, cancel := context.WithCancel(runCtx.Context)
	defer cancel()

	req := model.Request{
		Instructions: f.opts.Instructions,
		Messages:     history.Messages(),
		Tools:        f.registry.Definitions(),
		Deployment:   f.opts.Deployment,
		APIKey:       runCtx.APIKey,
	}
	if req.Deployment == "" {
		req.Deployment = runCtx.Deployment
	}

	start := time.Now()
	fragCh, errCh := f.model.Stream(ctx, req)

	agg := NewAggregator()
	var protoErr error
	for frag := range fragCh {
		if protoErr != nil {
			continue
		}
		if err := agg.Ingest(frag); err != nil {
			protoErr = err
			cancel()
			continue
		}
		switch fr := frag.(type) {
		case model.FragmentText:
			runCtx.AppendContent(fr.Text)
		case model.FragmentAttachment:
			runCtx.PublishAttachment(fr.Attachment)
		}
	}
	streamErr := <-errCh

	info := f.model.Info()
	switch {
	case protoErr != nil:
		logging.LLMCall(runCtx.Logger(), info.Name, agg.Fragments(), time.Since(start), protoErr)
		return core.AssistantTurn{}, protoErr
	case streamErr != nil:
		logging.LLMCall(runCtx.Logger(), info.Name, agg.Fragments(), time.Since(start), streamErr)
		if err := runCtx.Err(); err != nil {
			return core.AssistantTurn{}, err
		}
		return core.AssistantTurn{}, &core.UpstreamProviderError{Provider: info.Provider, Err: streamErr}
	}
	logging.LLMCall(runCtx.Logger(), info.Name, agg.Fragments(), time.Since(start), nil)

	return agg.Finalize(), nil
}
