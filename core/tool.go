package core

import (
	"context"
	"encoding/json"
)

// Tool is a named capability the agent can ask the model to call.
//
// Execute must never leak internal failures as Go errors for domain problems
// (bad arguments, empty data, upstream hiccups): those are reported through
// ToolResult so the model can see what went wrong and adapt. A returned error
// is reserved for conditions the conversation cannot recover from.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, params *ToolParams) (*ToolResult, error)
}

// ToolParams carries the per-call context into a tool handler.
type ToolParams struct {
	// UserID scopes every data access the tool performs.
	UserID string

	// Input is the raw JSON argument payload the model supplied.
	Input json.RawMessage
}

// ToolResult is the structured outcome of one tool call.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HandlerFunc is the function signature tool builders wrap into a Tool.
type HandlerFunc func(ctx context.Context, params *ToolParams) (*ToolResult, error)
