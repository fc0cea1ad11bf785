package agentcore

import "github.com/shopspring/decimal"

// EventType identifies the kind of event delivered on the output channel.
type EventType string

const (
	EventStart        EventType = "start"
	EventPrimary      EventType = "primary"
	EventDetail       EventType = "detail"
	EventReasoning    EventType = "reasoning"
	EventToolStart    EventType = "tool_start"
	EventToolComplete EventType = "tool_complete"
	EventCompleted    EventType = "completed"
	EventError        EventType = "error"
)

// Event is implemented by all output events. Within one session the sequence
// is causally ordered: a ToolStartEvent always precedes its matching
// ToolCompleteEvent, partial content precedes the turn's terminal marker,
// and exactly one terminal event (Completed or Error) closes the stream.
type Event interface {
	Type() EventType
}

// IsTerminal reports whether no further events follow e.
func IsTerminal(e Event) bool {
	switch e.Type() {
	case EventCompleted, EventError:
		return true
	}
	return false
}

// StartEvent is delivered once when the session transitions to Running.
type StartEvent struct {
	SessionID string
	Model     string
}

func (e *StartEvent) Type() EventType { return EventStart }

// PrimaryEvent carries assistant response text as it is streamed. A turn may
// produce any number of these; their concatenation is the turn's full text.
type PrimaryEvent struct {
	Turn int
	Text string
}

func (e *PrimaryEvent) Type() EventType { return EventPrimary }

// DetailEvent carries auxiliary progress text, such as tool output excerpts.
type DetailEvent struct {
	Turn int
	Text string
}

func (e *DetailEvent) Type() EventType { return EventDetail }

// ReasoningEvent carries model reasoning content, for models that emit it.
type ReasoningEvent struct {
	Turn int
	Text string
}

func (e *ReasoningEvent) Type() EventType { return EventReasoning }

// ToolStartEvent is delivered before a tool call begins executing.
type ToolStartEvent struct {
	Turn int
	Call ToolCall
}

func (e *ToolStartEvent) Type() EventType { return EventToolStart }

// ToolCompleteEvent is delivered after a tool call resolves. Denied and
// cancelled calls complete with a failure result; they are never dropped.
type ToolCompleteEvent struct {
	Turn   int
	Call   ToolCall
	Result ToolResult
}

func (e *ToolCompleteEvent) Type() EventType { return EventToolComplete }

// CompletedEvent is the terminal event of a successful session.
type CompletedEvent struct {
	// Reason is "end_turn" when the model finished naturally, "max_turns"
	// when the turn budget was exhausted, or "input_closed" when the input
	// channel was closed with no work pending.
	Reason string

	Turns int
	Usage Usage
	Cost  decimal.Decimal
}

func (e *CompletedEvent) Type() EventType { return EventCompleted }

// ErrorEvent is the terminal event of a stopped or failed session. A stop
// requested through the controller surfaces ErrStopped here.
type ErrorEvent struct {
	Err error
}

func (e *ErrorEvent) Type() EventType { return EventError }

// Usage aggregates token consumption across a session.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}
