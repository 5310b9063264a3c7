package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ledgerwise/advisor/core"
)

// ChatService is the slice of the Anthropic client the engine depends on.
// Pass &client.Messages in production; tests supply a mock.
type ChatService interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Engine runs a bounded, multi-turn tool-calling conversation with the model.
//
// Each turn the full message history plus the tool list is sent to the
// provider. The provider's stop reason decides what happens next: a natural
// stop ends the run with the final text, a tool-use stop executes every
// requested call and feeds the results back, a length truncation retries,
// and a refusal or unrecognized reason aborts the run. The iteration cap is
// the hard ceiling against runaway conversations.
type Engine struct {
	chat          ChatService
	registry      *ToolRegistry
	model         anthropic.Model
	maxTokens     int64
	maxIterations int
}

// Option configures the engine.
type Option func(*Engine)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = anthropic.Model(model) }
}

// WithMaxTokens overrides the per-turn output token limit.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithMaxIterations overrides the provider-turn ceiling.
func WithMaxIterations(n int) Option {
	return func(e *Engine) { e.maxIterations = n }
}

// New creates an engine with the given chat service and tool registry.
func New(chat ChatService, registry *ToolRegistry, opts ...Option) *Engine {
	e := &Engine{
		chat:          chat,
		registry:      registry,
		model:         "claude-sonnet-4-20250514",
		maxTokens:     4096,
		maxIterations: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunInput describes one agent run.
type RunInput struct {
	// UserID scopes every tool call made during the run.
	UserID string

	// SystemPrompt describes the goal, the tools, and the required output.
	SystemPrompt string

	// UserPrompt opens the conversation.
	UserPrompt string
}

// StopCause explains how a run ended.
type StopCause int

const (
	// CauseCompleted means the model stopped naturally; RunResult.Text holds
	// its final message.
	CauseCompleted StopCause = iota

	// CauseExhausted means the iteration cap was hit before a natural stop.
	CauseExhausted

	// CauseRefused means the provider filtered or refused the conversation.
	// Not retried.
	CauseRefused

	// CauseUnknownStop means the provider returned a stop reason this engine
	// does not recognize.
	CauseUnknownStop
)

func (c StopCause) String() string {
	switch c {
	case CauseCompleted:
		return "completed"
	case CauseExhausted:
		return "exhausted"
	case CauseRefused:
		return "refused"
	case CauseUnknownStop:
		return "unknown_stop"
	default:
		return "invalid"
	}
}

// ToolCallRecord captures one tool invocation for observability.
type ToolCallRecord struct {
	Tool     string
	Duration time.Duration
	Err      string
}

// RunResult is the outcome of one run.
type RunResult struct {
	Text      string
	Cause     StopCause
	Turns     int
	ToolCalls []ToolCallRecord
}

// truncationNudge replaces a length-truncated assistant turn. The partial
// message is dropped from history so the model never sees its own cut-off
// output and any unanswered tool requests in it vanish with it.
const truncationNudge = "Your previous reply was cut off before it finished. Answer again, more concisely."

// Run executes the conversation loop for one user.
//
// Transport-level failures from the provider are returned as errors; every
// tool-level failure is folded into the conversation as an error tool-result
// and never aborts the run.
func (e *Engine) Run(ctx context.Context, input *RunInput) (*RunResult, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(input.UserPrompt)),
	}
	apiTools := e.registry.ToAPITools()
	result := &RunResult{}

	for turn := 0; turn < e.maxIterations; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		params := anthropic.MessageNewParams{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			Messages:  messages,
			System: []anthropic.TextBlockParam{
				{Text: input.SystemPrompt},
			},
		}
		if len(apiTools) > 0 {
			params.Tools = apiTools
		}

		resp, err := e.chat.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		result.Turns++

		switch resp.StopReason {
		case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
			result.Text = textContent(resp)
			result.Cause = CauseCompleted
			return result, nil

		case anthropic.StopReasonToolUse:
			messages = append(messages, resp.ToParam())
			toolResults := e.runToolCalls(ctx, input.UserID, resp, result)
			messages = append(messages, anthropic.NewUserMessage(toolResults...))

		case anthropic.StopReasonMaxTokens:
			log.Printf("[ENGINE] user=%s turn=%d output truncated at token limit, retrying", input.UserID, turn+1)
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(truncationNudge)))

		case anthropic.StopReasonRefusal:
			log.Printf("[ENGINE] user=%s run refused by provider on turn %d", input.UserID, turn+1)
			result.Cause = CauseRefused
			return result, nil

		default:
			log.Printf("[ENGINE] user=%s unrecognized stop reason %q, aborting", input.UserID, resp.StopReason)
			result.Cause = CauseUnknownStop
			return result, nil
		}
	}

	log.Printf("[ENGINE] user=%s exhausted %d turns without a final answer", input.UserID, e.maxIterations)
	result.Cause = CauseExhausted
	return result, nil
}

// runToolCalls executes every tool request in resp, in the order the
// provider emitted them, and returns one result block per request. The next
// provider turn is only issued once every outstanding call has a result.
func (e *Engine) runToolCalls(ctx context.Context, userID string, resp *anthropic.Message, result *RunResult) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}

		tool, ok := e.registry.Get(block.Name)
		if !ok {
			log.Printf("[ENGINE] user=%s requested unregistered tool %q", userID, block.Name)
			blocks = append(blocks, anthropic.NewToolResultBlock(
				block.ID, fmt.Sprintf("tool not found: %s", block.Name), true))
			result.ToolCalls = append(result.ToolCalls, ToolCallRecord{
				Tool: block.Name,
				Err:  "tool not found",
			})
			continue
		}

		started := time.Now()
		res, err := tool.Execute(ctx, &core.ToolParams{
			UserID: userID,
			Input:  block.Input,
		})
		elapsed := time.Since(started)
		log.Printf("[ENGINE] user=%s tool=%s duration=%s", userID, block.Name, elapsed)

		record := ToolCallRecord{Tool: block.Name, Duration: elapsed}
		switch {
		case err != nil:
			record.Err = err.Error()
			blocks = append(blocks, anthropic.NewToolResultBlock(block.ID, err.Error(), true))
		case res == nil:
			record.Err = "tool returned no result"
			blocks = append(blocks, anthropic.NewToolResultBlock(block.ID, "tool returned no result", true))
		case !res.Success:
			record.Err = res.Error
			blocks = append(blocks, anthropic.NewToolResultBlock(block.ID, res.Error, true))
		default:
			payload, merr := json.Marshal(res.Data)
			if merr != nil {
				record.Err = merr.Error()
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ID, fmt.Sprintf("encode result: %v", merr), true))
			} else {
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ID, string(payload), false))
			}
		}
		result.ToolCalls = append(result.ToolCalls, record)
	}

	return blocks
}

// textContent concatenates the text blocks of a completion.
func textContent(resp *anthropic.Message) string {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}
