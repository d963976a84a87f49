package tool

import (
	"errors"
	"fmt"

	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
)

// ErrDuplicateTool is returned when two tools share a name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Registry is the immutable name -> Tool mapping consulted by the dispatcher.
// It is built once, before the first request, and never mutated afterwards,
// so concurrent lookups need no locking.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from tools in registration order. Empty or
// duplicate names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			return nil, errors.New("nil tool")
		}
		name := t.Name()
		if name == "" {
			return nil, errors.New("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error. Intended for tests
// and static wiring.
func MustRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Definitions renders every tool's model-facing declaration in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	if r.Len() == 0 {
		return nil
	}
	out := make([]model.ToolDefinition, len(r.order))
	for i, name := range r.order {
		out[i] = Definition(r.tools[name])
	}
	return out
}
