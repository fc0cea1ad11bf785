package agentcore

import "encoding/json"

// Role identifies the author of a message in the conversation history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the conversation history. The history is strictly
// append-only and ordered; the pipeline is the only writer during a session.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls carries the structured tool requests of an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults carries the answers to a prior assistant message's tool
	// calls, in the exact order those calls were issued.
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// UserMessage builds a user text message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message with optional tool calls.
func AssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// toolResultsMessage builds the history entry answering a batch of tool
// calls. Results must already be in original call order.
func toolResultsMessage(results []ToolResult) Message {
	return Message{Role: RoleTool, ToolResults: results}
}

// InputMessage is one unit of user input consumed by the execution pipeline.
type InputMessage struct {
	ID   string
	Text string

	// Payload optionally carries structured input alongside or instead of
	// Text. It is forwarded to the model verbatim as a JSON text block.
	Payload json.RawMessage
}

// Input builds a plain-text input message with a fresh ID.
func Input(text string) InputMessage {
	return InputMessage{ID: generateID(PrefixInput), Text: text}
}
