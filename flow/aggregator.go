package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
)

// slotCall buffers the increments of one tool call slot.
type slotCall struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// Aggregator folds the fragments of one provider stream into an AssistantTurn.
//
// Text increments append to the answer text. Tool call increments are keyed by
// slot index and may arrive interleaved across slots and before the slot's id.
// The first id seen for a slot binds it; a different id later in the same
// stream is a protocol violation. Name and argument increments concatenate in
// arrival order, so the result does not depend on how the provider split them.
//
// An Aggregator is not safe for concurrent use; one stream feeds one aggregator.
type Aggregator struct {
	text        strings.Builder
	slots       map[int]*slotCall
	attachments []core.Attachment
	fragments   int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{slots: map[int]*slotCall{}}
}

// Ingest folds one fragment.
func (a *Aggregator) Ingest(frag model.Fragment) error {
	a.fragments++
	switch f := frag.(type) {
	case model.FragmentText:
		a.text.WriteString(f.Text)
	case model.FragmentAttachment:
		a.attachments = append(a.attachments, f.Attachment)
	case model.FragmentToolCall:
		return a.ingestToolCall(f)
	case nil:
		return &core.StreamProtocolError{Slot: -1, Message: "nil fragment"}
	default:
		return &core.StreamProtocolError{Slot: -1, Message: fmt.Sprintf("unknown fragment type %T", frag)}
	}
	return nil
}

func (a *Aggregator) ingestToolCall(f model.FragmentToolCall) error {
	if f.Index < 0 {
		return &core.StreamProtocolError{Slot: f.Index, Message: "negative tool call index"}
	}
	s, ok := a.slots[f.Index]
	if !ok {
		s = &slotCall{}
		a.slots[f.Index] = s
	}
	if f.ID != "" {
		switch s.id {
		case "":
			s.id = f.ID
		case f.ID:
		default:
			return &core.StreamProtocolError{
				Slot:    f.Index,
				Message: fmt.Sprintf("conflicting tool call id %q (already bound to %q)", f.ID, s.id),
			}
		}
	}
	s.name.WriteString(f.Name)
	s.args.WriteString(f.Arguments)
	return nil
}

// Fragments returns how many fragments were ingested.
func (a *Aggregator) Fragments() int { return a.fragments }

// Attachments returns provider attachments seen on the stream.
func (a *Aggregator) Attachments() []core.Attachment { return a.attachments }

// Finalize returns the assembled turn. Tool calls are ordered by slot index;
// slots that never carried an id receive a generated one so results can
// always be correlated. Argument text is left unparsed.
func (a *Aggregator) Finalize() core.AssistantTurn {
	turn := core.AssistantTurn{Text: a.text.String()}
	if len(a.slots) == 0 {
		return turn
	}

	indices := make([]int, 0, len(a.slots))
	for idx := range a.slots {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	turn.ToolCalls = make([]core.ToolCall, 0, len(indices))
	for _, idx := range indices {
		s := a.slots[idx]
		id := s.id
		if id == "" {
			id = core.NewToolCallID()
		}
		turn.ToolCalls = append(turn.ToolCalls, core.ToolCall{
			ID:        id,
			Name:      s.name.String(),
			Arguments: s.args.String(),
		})
	}
	return turn
}
