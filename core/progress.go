package core

import (
	"context"
	"sync"
	"time"
)

// ProgressKind enumerates the side-channel events a request can produce.
type ProgressKind string

const (
	// EventContent carries a text increment of the final answer.
	EventContent ProgressKind = "content"
	// EventAttachment publishes an attachment on the final answer.
	EventAttachment ProgressKind = "attachment"
	// EventStageOpen opens a named progress stage (one per tool call).
	EventStageOpen ProgressKind = "stage_open"
	// EventStageContent appends text to a stage.
	EventStageContent ProgressKind = "stage_content"
	// EventStageAttachment adds an attachment to a stage.
	EventStageAttachment ProgressKind = "stage_attachment"
	// EventStageClose closes a stage.
	EventStageClose ProgressKind = "stage_close"
)

// ProgressEvent is one unit of live progress observed by the caller while a
// request is running. It is a side channel: nothing in it is part of the
// returned answer.
type ProgressEvent struct {
	ID         string       `json:"id"`
	RequestID  string       `json:"request_id"`
	Kind       ProgressKind `json:"kind"`
	Stage      int          `json:"stage,omitempty"`
	StageName  string       `json:"stage_name,omitempty"`
	Text       string       `json:"text,omitempty"`
	Attachment *Attachment  `json:"attachment,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// NewProgressEvent creates an event of the given kind bound to a request.
func NewProgressEvent(requestID string, kind ProgressKind) ProgressEvent {
	return ProgressEvent{
		ID:        NewID(),
		RequestID: requestID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// IsStage reports whether the event belongs to a tool stage.
func (e ProgressEvent) IsStage() bool {
	switch e.Kind {
	case EventStageOpen, EventStageContent, EventStageAttachment, EventStageClose:
		return true
	}
	return false
}

// ProgressSink receives progress events. Implementations must be safe for
// concurrent use: tool stages emit from dispatcher goroutines.
type ProgressSink interface {
	Emit(ev ProgressEvent)
}

// FuncSink adapts a function to ProgressSink.
type FuncSink func(ev ProgressEvent)

// Emit implements ProgressSink.
func (f FuncSink) Emit(ev ProgressEvent) { f(ev) }

// NopSink discards every event.
type NopSink struct{}

// Emit implements ProgressSink.
func (NopSink) Emit(ProgressEvent) {}

// ChannelSink forwards events to a channel, giving up when Ctx is done. A nil
// Ctx never gives up.
type ChannelSink struct {
	Ctx context.Context
	C   chan<- ProgressEvent
}

// Emit implements ProgressSink.
func (s ChannelSink) Emit(ev ProgressEvent) {
	ctx := s.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
	case s.C <- ev:
	}
}

// RecordingSink keeps every event in memory. Handy for tests and for callers
// that render progress after the fact.
type RecordingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

// Emit implements ProgressSink.
func (r *RecordingSink) Emit(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a snapshot of recorded events.
func (r *RecordingSink) Events() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProgressEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Content concatenates recorded answer text increments.
func (r *RecordingSink) Content() string {
	var text string
	for _, ev := range r.Events() {
		if ev.Kind == EventContent {
			text += ev.Text
		}
	}
	return text
}

// StageContent concatenates the text appended to the stage with the given index.
func (r *RecordingSink) StageContent(stage int) string {
	var text string
	for _, ev := range r.Events() {
		if ev.Kind == EventStageContent && ev.Stage == stage {
			text += ev.Text
		}
	}
	return text
}

// Stage is a named progress section owned by one tool call.
type Stage struct {
	index     int
	name      string
	requestID string
	sink      ProgressSink

	mu     sync.Mutex
	closed bool
}

func newStage(index int, name, requestID string, sink ProgressSink) *Stage {
	if sink == nil {
		sink = NopSink{}
	}
	s := &Stage{index: index, name: name, requestID: requestID, sink: sink}
	ev := s.event(EventStageOpen)
	s.sink.Emit(ev)
	return s
}

// Index returns the stage number within its request.
func (s *Stage) Index() int { return s.index }

// Name returns the stage title.
func (s *Stage) Name() string { return s.name }

func (s *Stage) event(kind ProgressKind) ProgressEvent {
	ev := NewProgressEvent(s.requestID, kind)
	ev.Stage = s.index
	ev.StageName = s.name
	return ev
}

// AppendContent appends text to the stage. Calls after Close are dropped.
func (s *Stage) AppendContent(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ev := s.event(EventStageContent)
	ev.Text = text
	s.sink.Emit(ev)
}

// AddAttachment adds an attachment to the stage.
func (s *Stage) AddAttachment(a Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ev := s.event(EventStageAttachment)
	ev.Attachment = &a
	s.sink.Emit(ev)
}

// Close closes the stage. It is idempotent.
func (s *Stage) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.sink.Emit(s.event(EventStageClose))
}

// Closed reports whether Close was called.
func (s *Stage) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
