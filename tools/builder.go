package tools

import (
	"context"

	"github.com/ledgerwise/advisor/core"
)

// Builder assembles a core.Tool from a name, description, schema and handler.
//
// Usage:
//
//	tool := tools.New("search_transactions").
//		Description("Find transactions semantically similar to a query.").
//		Schema(tools.ObjectSchema(...)).
//		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
//			...
//		}).
//		Build()
type Builder struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     core.HandlerFunc
}

// New starts building a tool with the given name.
func New(name string) *Builder {
	return &Builder{name: name}
}

// Description sets the natural-language capability summary the model sees.
func (b *Builder) Description(d string) *Builder {
	b.description = d
	return b
}

// Schema sets the JSON Schema describing accepted arguments.
func (b *Builder) Schema(s map[string]interface{}) *Builder {
	b.schema = s
	return b
}

// Handler sets the execution function.
func (b *Builder) Handler(h core.HandlerFunc) *Builder {
	b.handler = h
	return b
}

// Build finalizes the tool.
func (b *Builder) Build() core.Tool {
	schema := b.schema
	if schema == nil {
		schema = ObjectSchema(map[string]interface{}{})
	}
	return &funcTool{
		name:        b.name,
		description: b.description,
		schema:      schema,
		handler:     b.handler,
	}
}

type funcTool struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     core.HandlerFunc
}

func (t *funcTool) Name() string                        { return t.name }
func (t *funcTool) Description() string                 { return t.description }
func (t *funcTool) InputSchema() map[string]interface{} { return t.schema }

func (t *funcTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	if t.handler == nil {
		return &core.ToolResult{Success: false, Error: "tool has no handler"}, nil
	}
	return t.handler(ctx, params)
}
