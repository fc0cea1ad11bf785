package agentcore

import (
	"context"
	"errors"
	"time"

	"github.com/arcline/agentcore/internal/cost"
	"github.com/arcline/agentcore/provider"
)

// errMaxTurns signals that the session's turn budget ran out. Internal only;
// the pipeline reports it as a Completed event with reason "max_turns".
var errMaxTurns = errors.New("agentcore: max turns reached")

// emitFunc delivers an event to the output channel. It returns false when the
// execution context has ended and the event could not be delivered.
type emitFunc func(Event) bool

// engine drives turns for one execution: model call with retry, streamed
// delta fan-out, tool batch dispatch and history bookkeeping.
type engine struct {
	cfg        Config
	client     provider.Client
	registry   *Registry
	dispatcher *dispatcher
	tracker    *cost.Tracker
	machine    *stateMachine
	session    *Session
	emit       emitFunc
}

// runInput processes one input message to quiescence: turns repeat while the
// model keeps requesting tools. Returns nil when the model ends its turn,
// or a fatal error (ErrStopped, ErrBudgetExhausted, errMaxTurns, ModelError).
func (e *engine) runInput(ctx context.Context, input InputMessage) error {
	text := input.Text
	if len(input.Payload) > 0 {
		if text != "" {
			text += "\n"
		}
		text += string(input.Payload)
	}
	e.session.Messages = append(e.session.Messages, UserMessage(text))

	for {
		if err := e.machine.TurnBoundary(ctx); err != nil {
			return err
		}
		if e.tracker.Exhausted() {
			return ErrBudgetExhausted
		}
		if e.machine.Turns() >= e.cfg.MaxTurns {
			return errMaxTurns
		}
		turn := e.machine.NextTurn()
		e.session.Metrics.Turns = turn

		resp, err := e.callModel(ctx, turn)
		if err != nil {
			return err
		}

		e.tracker.Record(e.cfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		usage := e.tracker.TotalUsage()
		e.session.Metrics.Usage = Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens}
		e.session.Metrics.Cost = e.tracker.TotalCost()

		calls := make([]ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			calls[i] = ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args}
		}
		e.session.Messages = append(e.session.Messages, AssistantMessage(resp.Text, calls...))

		if resp.StopReason != provider.StopToolUse || len(calls) == 0 {
			e.cfg.Logger.Debug("turn ended",
				"turn", turn,
				"stop_reason", string(resp.StopReason),
				"tool_calls", len(calls))
			return nil
		}

		e.runToolBatch(ctx, turn, calls)
	}
}

// callModel performs one streaming model call, retrying transient transport
// errors with exponential backoff. Streamed deltas are forwarded as Primary
// and Reasoning events; a retry restarts the stream from scratch.
func (e *engine) callModel(ctx context.Context, turn int) (*provider.Response, error) {
	req := provider.Request{
		Model:     e.cfg.Model,
		System:    e.cfg.SystemPrompt,
		MaxTokens: e.cfg.MaxOutputTokens,
		Messages:  toProviderMessages(e.session.Messages),
		Tools:     toProviderTools(e.registry.Specs()),
	}

	emitDelta := func(d provider.Delta) error {
		var ev Event
		switch d.Kind {
		case provider.DeltaReasoning:
			ev = &ReasoningEvent{Turn: turn, Text: d.Text}
		default:
			ev = &PrimaryEvent{Turn: turn, Text: d.Text}
		}
		if !e.emit(ev) {
			if err := e.stoppedOrDone(ctx); err != nil {
				return err
			}
			return context.Canceled
		}
		return nil
	}

	// A stop request aborts the in-flight stream; the resulting cancellation
	// is reported as ErrStopped, not as a model failure.
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.machine.StopSignal():
			cancel()
		case <-callCtx.Done():
		}
	}()

	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := provider.BackoffDelay(attempt-1, e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay)
			e.cfg.Logger.Warn("retrying model call",
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-callCtx.Done():
			}
		}
		if err := e.stoppedOrDone(ctx); err != nil {
			return nil, err
		}

		resp, err := e.client.StreamTurn(callCtx, req, emitDelta)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if callCtx.Err() != nil || !provider.IsRetryable(err) {
			break
		}
	}
	if err := e.stoppedOrDone(ctx); err != nil {
		return nil, err
	}
	return nil, &ModelError{Provider: e.client.Name(), Err: lastErr}
}

func (e *engine) stoppedOrDone(ctx context.Context) error {
	select {
	case <-e.machine.StopSignal():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// detailExcerptLimit bounds the tool-output excerpt carried by Detail events.
const detailExcerptLimit = 200

// runToolBatch dispatches one turn's tool calls and records their results.
// All starts are announced in call order before execution; completions are
// announced in the same order after the batch joins, each preceded by a
// Detail event excerpting the tool's output.
func (e *engine) runToolBatch(ctx context.Context, turn int, calls []ToolCall) {
	for _, call := range calls {
		e.emit(&ToolStartEvent{Turn: turn, Call: call})
	}

	results := e.dispatcher.Run(ctx, e.machine.StopSignal(), calls)

	for i, call := range calls {
		if excerpt := detailExcerpt(results[i].Content); excerpt != "" {
			e.emit(&DetailEvent{Turn: turn, Text: excerpt})
		}
		e.emit(&ToolCompleteEvent{Turn: turn, Call: call, Result: results[i]})
	}

	e.session.Messages = append(e.session.Messages, toolResultsMessage(results))
	e.session.Metrics.ToolCalls += len(calls)
}

// detailExcerpt trims tool output to the Detail event size bound.
func detailExcerpt(content string) string {
	if len(content) <= detailExcerptLimit {
		return content
	}
	return content[:detailExcerptLimit] + "..."
}

func toProviderMessages(history []Message) []provider.Message {
	out := make([]provider.Message, 0, len(history))
	for _, m := range history {
		pm := provider.Message{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, provider.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
		}
		for _, tr := range m.ToolResults {
			pm.ToolResults = append(pm.ToolResults, provider.ToolResult{
				CallID:  tr.CallID,
				Content: tr.Content,
				IsError: tr.IsError,
			})
		}
		out = append(out, pm)
	}
	return out
}

func toProviderTools(specs []ToolSpec) []provider.ToolDef {
	out := make([]provider.ToolDef, 0, len(specs))
	for _, s := range specs {
		out = append(out, provider.ToolDef{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	return out
}
