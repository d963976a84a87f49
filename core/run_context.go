package core

import (
	"context"
	"sync"

	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
)

// RunOptions configures a RunContext.
type RunOptions struct {
	// RequestID correlates logs and progress events; generated when empty.
	RequestID string
	// ConversationID scopes cached artifacts to one conversation.
	ConversationID string
	// APIKey is the caller credential forwarded to providers and tools.
	APIKey string
	// Deployment is the provider deployment answering the conversation.
	Deployment string
	// MaxTurns bounds the tool loop; 0 means unlimited.
	MaxTurns int
	// Sink receives live progress; defaults to NopSink.
	Sink ProgressSink
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// RunContext carries the per-request execution scope shared by the
// orchestrator, the dispatcher and every tool invocation of one request:
//   - The ambient cancellation Context
//   - Identifiers and credentials (request, conversation, API key, deployment)
//   - The progress sink and stage numbering
//   - Attachments published on the final answer
//   - The turn limiter
type RunContext struct {
	Context        context.Context
	RequestID      string
	ConversationID string
	APIKey         string
	Deployment     string
	Limiter        *TurnLimiter

	sink ProgressSink

	mu          sync.Mutex
	stageSeq    int
	attachments []Attachment

	*loggerAdapter
}

// NewRunContext constructs a RunContext with defaults applied.
func NewRunContext(ctx context.Context, opts RunOptions) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.RequestID == "" {
		opts.RequestID = NewID()
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	return &RunContext{
		Context:        ctx,
		RequestID:      opts.RequestID,
		ConversationID: opts.ConversationID,
		APIKey:         opts.APIKey,
		Deployment:     opts.Deployment,
		Limiter:        NewTurnLimiter(opts.MaxTurns),
		sink:           opts.Sink,
		loggerAdapter:  newLoggerAdapter(opts.Logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// Sink returns the progress sink.
func (rc *RunContext) Sink() ProgressSink { return rc.sink }

// AppendContent forwards an answer text increment to the progress sink.
func (rc *RunContext) AppendContent(text string) {
	if text == "" {
		return
	}
	ev := NewProgressEvent(rc.RequestID, EventContent)
	ev.Text = text
	rc.sink.Emit(ev)
}

// PublishAttachment records an attachment on the final answer and forwards it
// to the progress sink.
func (rc *RunContext) PublishAttachment(a Attachment) {
	rc.mu.Lock()
	rc.attachments = append(rc.attachments, a)
	rc.mu.Unlock()

	ev := NewProgressEvent(rc.RequestID, EventAttachment)
	ev.Attachment = &a
	rc.sink.Emit(ev)
}

// Attachments returns a snapshot of published attachments.
func (rc *RunContext) Attachments() []Attachment {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.attachments) == 0 {
		return nil
	}
	out := make([]Attachment, len(rc.attachments))
	copy(out, rc.attachments)
	return out
}

// OpenStage opens a new numbered progress stage.
func (rc *RunContext) OpenStage(name string) *Stage {
	rc.mu.Lock()
	idx := rc.stageSeq
	rc.stageSeq++
	rc.mu.Unlock()
	return newStage(idx, name, rc.RequestID, rc.sink)
}
