package model

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrScriptExhausted is returned when a ScriptedModel is asked for more turns
// than it was given.
var ErrScriptExhausted = errors.New("scripted model: no turns left")

// ScriptedTurn is the canned output of one Stream call.
type ScriptedTurn struct {
	Fragments []Fragment
	// Err, when set, is delivered after the fragments.
	Err error
	// Delay is applied before each fragment.
	Delay time.Duration
}

// ScriptedModel is a deterministic in-memory Model useful for tests and
// examples. Each Stream call consumes the next scripted turn.
type ScriptedModel struct {
	info  Info
	mu    sync.Mutex
	turns []ScriptedTurn
	next  int
	reqs  []Request
}

// NewScriptedModel constructs a ScriptedModel replaying the given turns.
func NewScriptedModel(name string, turns ...ScriptedTurn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: name, Provider: "scripted", SupportsTools: true},
		turns: turns,
	}
}

// TextTurn builds a terminal turn streaming text split into chunks of at most size runes.
func TextTurn(text string, size int) ScriptedTurn {
	return ScriptedTurn{Fragments: SplitText(text, size)}
}

// SplitText splits text into FragmentText increments of at most size runes.
func SplitText(text string, size int) []Fragment {
	if size <= 0 {
		size = len(text)
	}
	runes := []rune(text)
	var frags []Fragment
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		frags = append(frags, FragmentText{Text: string(runes[start:end])})
	}
	return frags
}

// ToolCallFragments streams one complete tool call as three increments: the
// id and name first, then the arguments split in two halves.
func ToolCallFragments(index int, id, name, args string) []Fragment {
	half := len(args) / 2
	return []Fragment{
		FragmentToolCall{Index: index, ID: id, Name: name},
		FragmentToolCall{Index: index, Arguments: args[:half]},
		FragmentToolCall{Index: index, Arguments: args[half:]},
	}
}

// Stream implements Model.
func (m *ScriptedModel) Stream(ctx context.Context, req Request) (<-chan Fragment, <-chan error) {
	out := make(chan Fragment)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	var (
		turn ScriptedTurn
		ok   bool
	)
	if m.next < len(m.turns) {
		turn, ok = m.turns[m.next], true
		m.next++
	}
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)
		if !ok {
			errCh <- ErrScriptExhausted
			return
		}
		for _, frag := range turn.Fragments {
			if turn.Delay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(turn.Delay):
				}
			}
			if !Send(ctx, out, frag) {
				errCh <- ctx.Err()
				return
			}
		}
		if turn.Err != nil {
			errCh <- turn.Err
		}
	}()
	return out, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// Calls returns how many times Stream was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

// Requests returns a snapshot of every request received.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.reqs))
	copy(out, m.reqs)
	return out
}
