// Package provider abstracts the model transport behind a streaming Client
// interface with Anthropic and OpenAI implementations. The runtime core
// depends only on this package's neutral request/response types; provider
// wire formats never cross the boundary.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// StopReason tells the caller why the model stopped producing output.
type StopReason string

const (
	// StopEndTurn means the model finished its answer.
	StopEndTurn StopReason = "end_turn"
	// StopToolUse means the response carries tool calls to execute.
	StopToolUse StopReason = "tool_use"
	// StopMaxTokens means the output token cap was hit.
	StopMaxTokens StopReason = "max_tokens"
)

// DeltaKind distinguishes streamed content fragments.
type DeltaKind int

const (
	DeltaText DeltaKind = iota
	DeltaReasoning
)

// Delta is one streamed content fragment.
type Delta struct {
	Kind DeltaKind
	Text string
}

// StreamFunc receives deltas as they arrive. Returning an error aborts the
// stream; a blocking implementation propagates backpressure to the wire.
type StreamFunc func(Delta) error

// Message is one conversation entry in the provider-neutral format.
type Message struct {
	Role        string // "user", "assistant" or "tool"
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a model-emitted request to invoke a named tool.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// ToolDef advertises an invocable tool to the model.
type ToolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Usage holds one call's token counts.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Request is one model call: the full history plus the advertised tool set.
type Request struct {
	Model     string
	System    string
	MaxTokens int
	Messages  []Message
	Tools     []ToolDef
}

// Response is the accumulated outcome of one streamed model call.
type Response struct {
	Text       string
	Reasoning  string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// Client streams one model turn at a time. Implementations are safe for
// concurrent use; each StreamTurn call is independent.
type Client interface {
	Name() string
	StreamTurn(ctx context.Context, req Request, emit StreamFunc) (*Response, error)
}

// Config carries what a concrete client needs at construction.
type Config struct {
	Provider string // "anthropic" or "openai"
	APIKey   string // empty means ambient credentials (environment)
	BaseURL  string // optional override, openai only
}

// New constructs a Client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropic(cfg.APIKey), nil
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("provider: unknown provider %q", cfg.Provider)
	}
}
