package engine

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ledgerwise/advisor/core"
)

// ToolRegistry holds the full set of tools available to an agent run.
//
// A registry is assembled once at startup and never mutated afterwards, so
// lookups during a run need no locking. Adding a capability means
// implementing core.Tool and passing it to NewToolRegistry; the dispatch
// site never changes.
type ToolRegistry struct {
	tools map[string]core.Tool
	order []string
}

// NewToolRegistry builds a registry from the given tools.
// Duplicate tool names are rejected, as is an empty tool set: an agent
// that cannot call anything cannot investigate anything.
func NewToolRegistry(tools ...core.Tool) (*ToolRegistry, error) {
	if len(tools) == 0 {
		return nil, fmt.Errorf("registry needs at least one tool")
	}
	r := &ToolRegistry{tools: make(map[string]core.Tool, len(tools))}
	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the tool registered under name.
func (r *ToolRegistry) Get(name string) (core.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in registration order.
func (r *ToolRegistry) All() []core.Tool {
	out := make([]core.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ToAPITools converts every registered tool into the shape the Anthropic
// function-calling API expects.
func (r *ToolRegistry) ToAPITools() []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		schema := t.InputSchema()

		var required []string
		if req, ok := schema["required"].([]string); ok {
			required = req
		}

		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
					Required:   required,
				},
			},
		})
	}
	return out
}
