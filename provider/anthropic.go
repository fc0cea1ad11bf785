package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicClient streams turns through the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropic creates an Anthropic-backed client. An empty apiKey defers to
// the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(apiKey string) *AnthropicClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...)}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

// StreamTurn runs one streaming Messages call, forwarding text and thinking
// deltas to emit and accumulating the full message for the response.
func (c *AnthropicClient) StreamTurn(ctx context.Context, req Request, emit StreamFunc) (*Response, error) {
	params, err := anthropicParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			stream.Close()
			return nil, fmt.Errorf("accumulate stream event: %w", err)
		}
		if event.Type != "content_block_delta" {
			continue
		}
		switch event.Delta.Type {
		case "text_delta":
			if event.Delta.Text != "" {
				if err := emit(Delta{Kind: DeltaText, Text: event.Delta.Text}); err != nil {
					stream.Close()
					return nil, err
				}
			}
		case "thinking_delta":
			if event.Delta.Thinking != "" {
				if err := emit(Delta{Kind: DeltaReasoning, Text: event.Delta.Thinking}); err != nil {
					stream.Close()
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, err
	}
	stream.Close()

	return anthropicResponse(msg), nil
}

func anthropicParams(req Request) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	for _, m := range req.Messages {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			if len(tc.Args) > 0 {
				if err := json.Unmarshal(tc.Args, &input); err != nil {
					return params, fmt.Errorf("tool call %s has invalid arguments: %w", tc.ID, err)
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		for _, tr := range m.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.CallID, tr.Content, tr.IsError))
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			// User and tool roles both map to user messages on this wire.
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	for _, t := range req.Tools {
		var schemaDoc struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schemaDoc); err != nil {
				return params, fmt.Errorf("tool %s has invalid schema: %w", t.Name, err)
			}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schemaDoc.Properties,
					Required:   schemaDoc.Required,
				},
			},
		})
	}

	return params, nil
}

func anthropicResponse(msg anthropic.Message) *Response {
	resp := &Response{
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "thinking":
			resp.Reasoning += block.Thinking
		case "tool_use":
			tu := block.AsToolUse()
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:   tu.ID,
				Name: tu.Name,
				Args: json.RawMessage(tu.Input),
			})
		}
	}

	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		resp.StopReason = StopToolUse
	case anthropic.StopReasonMaxTokens:
		resp.StopReason = StopMaxTokens
	default:
		resp.StopReason = StopEndTurn
	}
	return resp
}
