package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient streams turns through the OpenAI chat completions API. Tool
// calls arrive fragmented across chunks and are accumulated by index until
// the finish reason marks them complete.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI-backed client. An empty baseURL uses the
// default endpoint; a non-empty one targets a compatible gateway.
func NewOpenAI(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("provider: openai requires an API key")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}, nil
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) StreamTurn(ctx context.Context, req Request, emit StreamFunc) (*Response, error) {
	chatReq, err := openaiRequest(req)
	if err != nil {
		return nil, err
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	resp := &Response{StopReason: StopEndTurn}
	var text strings.Builder
	calls := make(map[int]*ToolCall)
	argBufs := make(map[int]*strings.Builder)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if chunk.Usage != nil {
			resp.Usage.InputTokens = int64(chunk.Usage.PromptTokens)
			resp.Usage.OutputTokens = int64(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			if err := emit(Delta{Kind: DeltaText, Text: choice.Delta.Content}); err != nil {
				return nil, err
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if calls[idx] == nil {
				calls[idx] = &ToolCall{}
				argBufs[idx] = &strings.Builder{}
			}
			if tc.ID != "" {
				calls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				argBufs[idx].WriteString(tc.Function.Arguments)
			}
		}

		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			resp.StopReason = StopToolUse
		case openai.FinishReasonLength:
			resp.StopReason = StopMaxTokens
		}
	}

	resp.Text = text.String()

	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		call := calls[idx]
		if call.ID == "" || call.Name == "" {
			continue
		}
		args := argBufs[idx].String()
		if args == "" {
			args = "{}"
		}
		call.Args = json.RawMessage(args)
		resp.ToolCalls = append(resp.ToolCalls, *call)
	}
	if len(resp.ToolCalls) > 0 {
		resp.StopReason = StopToolUse
	}

	return resp, nil
}

func openaiRequest(req Request) (openai.ChatCompletionRequest, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			chatReq.Messages = append(chatReq.Messages, msg)
		case "tool":
			// One message per result, keyed to its originating call.
			for _, tr := range m.ToolResults {
				chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.CallID,
				})
			}
		default:
			chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		}
	}

	for _, t := range req.Tools {
		var params map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &params); err != nil {
				return chatReq, fmt.Errorf("tool %s has invalid schema: %w", t.Name, err)
			}
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	return chatReq, nil
}
