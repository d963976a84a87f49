package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/flow"
	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// DefaultMaxTurns bounds the tool loop of one request.
const DefaultMaxTurns = 25

// ErrEmptyConversation is returned for requests without messages.
var ErrEmptyConversation = errors.New("agent: request has no messages")

// Options configures an Agent.
type Options struct {
	// Instruction is prepended to every conversation as the system message.
	Instruction Instruction
	// Deployment answers the conversation unless the request names one.
	Deployment string
	// MaxTurns bounds the tool loop; 0 or less means unlimited.
	MaxTurns int
	// MaxConcurrentRequests limits requests running at once; 0 means unlimited.
	MaxConcurrentRequests int
	// Dispatcher tunes tool execution.
	Dispatcher flow.DispatcherOptions
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Request is one chat completion request.
type Request struct {
	// ID correlates logs and progress; generated when empty.
	ID string
	// ConversationID scopes cached artifacts such as document indexes.
	ConversationID string
	// Messages is the conversation as the client sent it, last message last.
	Messages []core.Message
	// APIKey is the caller credential forwarded to providers and tools.
	APIKey string
	// Deployment overrides the configured deployment.
	Deployment string
}

// Response is the outcome of a request.
type Response struct {
	RequestID string
	// Message is the final assistant answer. Its State holds the tool
	// exchanges of this request.
	Message core.Message
	// Turns is the number of provider calls made.
	Turns int
	// Duration is the wall time of the request.
	Duration time.Duration
}

// Agent answers chat requests with a tool-augmented model.
type Agent struct {
	flow   *flow.Flow
	opts   Options
	logger logging.Logger
	slots  chan struct{}

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates an agent over a model and the capability registry.
func New(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction: NewInstructionFromText(DefaultSystemPrompt),
		MaxTurns:    DefaultMaxTurns,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	a := &Agent{
		flow: flow.New(m, registry, func(o *flow.Options) {
			o.Dispatcher = opts.Dispatcher
		}),
		opts:   opts,
		logger: opts.Logger,
		active: make(map[string]context.CancelFunc),
	}
	if opts.MaxConcurrentRequests > 0 {
		a.slots = make(chan struct{}, opts.MaxConcurrentRequests)
	}
	return a
}

// Registry returns the capabilities offered to the model.
func (a *Agent) Registry() *tool.Registry { return a.flow.Registry() }

// HandleRequest runs one request to completion. Progress (answer text,
// stages, attachments) is emitted to sink while the request runs; a nil sink
// discards it.
func (a *Agent) HandleRequest(ctx context.Context, req Request, sink core.ProgressSink) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyConversation
	}
	if req.ID == "" {
		req.ID = core.NewID()
	}
	deployment := req.Deployment
	if deployment == "" {
		deployment = a.opts.Deployment
	}

	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.track(req.ID, cancel); err != nil {
		return nil, err
	}
	defer a.untrack(req.ID)

	rc := core.NewRunContext(ctx, core.RunOptions{
		RequestID:      req.ID,
		ConversationID: req.ConversationID,
		APIKey:         req.APIKey,
		Deployment:     deployment,
		MaxTurns:       a.opts.MaxTurns,
		Sink:           sink,
		Logger:         a.logger,
	})

	system, err := a.opts.Instruction.Resolve(rc)
	if err != nil {
		return nil, fmt.Errorf("agent: resolve instruction: %w", err)
	}

	var msgs []core.Message
	if system != "" {
		msgs = append(msgs, core.NewSystemMessage(system))
	}
	msgs = append(msgs, Unpack(req.Messages)...)
	history := core.NewHistory(msgs...)
	start := history.Len()

	rc.LogInfo("agent.request.start",
		"request_id", req.ID,
		"conversation_id", req.ConversationID,
		"deployment", deployment,
		"messages", len(msgs),
	)
	began := time.Now()

	final, err := a.flow.Run(rc, history)
	if err != nil {
		rc.LogError("agent.request.failed", "request_id", req.ID, "turns", rc.Limiter.Count(), "error", err.Error())
		return nil, err
	}

	msg := *final
	msg.State = &core.State{ToolCallHistory: toolExchanges(history.Since(start))}

	resp := &Response{
		RequestID: req.ID,
		Message:   msg,
		Turns:     rc.Limiter.Count(),
		Duration:  time.Since(began),
	}
	rc.LogInfo("agent.request.done",
		"request_id", req.ID,
		"turns", resp.Turns,
		"tool_messages", len(msg.State.ToolCallHistory),
		"attachments", len(msg.Attachments),
		"duration", resp.Duration,
	)
	return resp, nil
}

// Cancel stops a running request. It reports whether the request was found.
func (a *Agent) Cancel(requestID string) bool {
	a.mu.Lock()
	cancel, ok := a.active[requestID]
	a.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active returns the number of requests in flight.
func (a *Agent) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

func (a *Agent) acquire(ctx context.Context) error {
	if a.slots == nil {
		return nil
	}
	select {
	case a.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) release() {
	if a.slots != nil {
		<-a.slots
	}
}

func (a *Agent) track(id string, cancel context.CancelFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.active[id]; dup {
		return fmt.Errorf("agent: request %s is already running", id)
	}
	a.active[id] = cancel
	return nil
}

func (a *Agent) untrack(id string) {
	a.mu.Lock()
	delete(a.active, id)
	a.mu.Unlock()
}
