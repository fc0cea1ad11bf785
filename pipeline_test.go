package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/agentcore/policy"
	"github.com/arcline/agentcore/provider"
)

// fakeTurn scripts one model call.
type fakeTurn struct {
	deltas []provider.Delta
	resp   provider.Response
	err    error
	block  chan struct{} // when set, the call parks here until closed or ctx ends
}

// fakeClient replays scripted turns. Calls past the script end the turn with
// empty text.
type fakeClient struct {
	mu     sync.Mutex
	turns  []fakeTurn
	nCalls int
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) StreamTurn(ctx context.Context, _ provider.Request, emit provider.StreamFunc) (*provider.Response, error) {
	f.mu.Lock()
	idx := f.nCalls
	f.nCalls++
	f.mu.Unlock()

	if idx >= len(f.turns) {
		return &provider.Response{StopReason: provider.StopEndTurn}, nil
	}
	turn := f.turns[idx]
	if turn.block != nil {
		select {
		case <-turn.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if turn.err != nil {
		return nil, turn.err
	}
	for _, d := range turn.deltas {
		if err := emit(d); err != nil {
			return nil, err
		}
	}
	resp := turn.resp
	return &resp, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nCalls
}

func newTestAgent(t *testing.T, client provider.Client, opts ...Option) *Agent {
	t.Helper()
	a, err := New(append([]Option{withClient(client)}, opts...)...)
	require.NoError(t, err)
	return a
}

func textTurn(text string) fakeTurn {
	return fakeTurn{
		deltas: []provider.Delta{{Kind: provider.DeltaText, Text: text}},
		resp: provider.Response{
			Text:       text,
			StopReason: provider.StopEndTurn,
			Usage:      provider.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
}

func toolTurn(calls ...provider.ToolCall) fakeTurn {
	return fakeTurn{
		resp: provider.Response{
			ToolCalls:  calls,
			StopReason: provider.StopToolUse,
			Usage:      provider.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
}

func singleInput(text string) chan InputMessage {
	inputs := make(chan InputMessage, 1)
	inputs <- Input(text)
	close(inputs)
	return inputs
}

func collectEvents(t *testing.T, exec *Execution) []Event {
	t.Helper()
	var events []Event
	for ev := range exec.Events() {
		events = append(events, ev)
	}
	return events
}

func TestExecute_SimpleTextRun(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{textTurn("hello world")}}
	a := newTestAgent(t, client)

	exec, err := a.Execute(context.Background(), singleInput("hi"))
	require.NoError(t, err)

	events := collectEvents(t, exec)
	require.GreaterOrEqual(t, len(events), 3)

	start, ok := events[0].(*StartEvent)
	require.True(t, ok, "first event must be Start")
	assert.Equal(t, exec.SessionID(), start.SessionID)

	primary, ok := events[1].(*PrimaryEvent)
	require.True(t, ok)
	assert.Equal(t, "hello world", primary.Text)
	assert.Equal(t, 1, primary.Turn)

	completed, ok := events[len(events)-1].(*CompletedEvent)
	require.True(t, ok, "last event must be Completed")
	assert.Equal(t, "end_turn", completed.Reason)
	assert.Equal(t, 1, completed.Turns)
	assert.Equal(t, int64(10), completed.Usage.InputTokens)
	assert.Equal(t, int64(5), completed.Usage.OutputTokens)

	require.NoError(t, exec.Join(context.Background()))
	assert.Equal(t, StateCompleted, exec.State())
}

func TestExecute_ExactlyOneTerminalEvent(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{textTurn("done")}}
	a := newTestAgent(t, client)

	exec, err := a.Execute(context.Background(), singleInput("hi"))
	require.NoError(t, err)

	terminals := 0
	for _, ev := range collectEvents(t, exec) {
		if IsTerminal(ev) {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestExecute_ToolRoundtrip(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{
		toolTurn(
			provider.ToolCall{ID: "t1", Name: "lookup", Args: json.RawMessage(`{"q":"a"}`)},
			provider.ToolCall{ID: "t2", Name: "lookup", Args: json.RawMessage(`{"q":"b"}`)},
		),
		textTurn("all done"),
	}}

	a := newTestAgent(t, client, WithTools(func(r *Registry) error {
		return r.Register(ToolSpec{Name: "lookup", Class: policy.ClassRead},
			HandlerFunc(func(_ context.Context, args json.RawMessage) (*ToolResult, error) {
				return SuccessResult("result for " + string(args)), nil
			}))
	}))

	exec, err := a.Execute(context.Background(), singleInput("look things up"))
	require.NoError(t, err)
	events := collectEvents(t, exec)

	var starts []*ToolStartEvent
	var completes []*ToolCompleteEvent
	for _, ev := range events {
		switch e := ev.(type) {
		case *ToolStartEvent:
			starts = append(starts, e)
		case *ToolCompleteEvent:
			completes = append(completes, e)
		}
	}
	require.Len(t, starts, 2)
	require.Len(t, completes, 2)

	// Starts and completions both follow call order.
	assert.Equal(t, "t1", starts[0].Call.ID)
	assert.Equal(t, "t2", starts[1].Call.ID)
	assert.Equal(t, "t1", completes[0].Result.CallID)
	assert.Equal(t, "t2", completes[1].Result.CallID)
	assert.False(t, completes[0].Result.IsError)

	// All starts precede all completions within the batch.
	lastStart, firstComplete := -1, len(events)
	for i, ev := range events {
		if _, ok := ev.(*ToolStartEvent); ok && i > lastStart {
			lastStart = i
		}
		if _, ok := ev.(*ToolCompleteEvent); ok && i < firstComplete {
			firstComplete = i
		}
	}
	assert.Less(t, lastStart, firstComplete)

	require.NoError(t, exec.Join(context.Background()))
	assert.Equal(t, 2, client.calls())

	// The history carries the batch's results in call order.
	session := exec.Session()
	last := session.Messages[len(session.Messages)-2]
	require.Equal(t, RoleTool, last.Role)
	require.Len(t, last.ToolResults, 2)
	assert.Equal(t, "t1", last.ToolResults[0].CallID)
	assert.Equal(t, 2, session.Metrics.ToolCalls)
}

func TestExecute_ToolOutputDetailEvents(t *testing.T) {
	long := strings.Repeat("x", detailExcerptLimit+100)
	client := &fakeClient{turns: []fakeTurn{
		toolTurn(provider.ToolCall{ID: "t1", Name: "dump", Args: json.RawMessage(`{}`)}),
		textTurn("done"),
	}}

	a := newTestAgent(t, client, WithTools(func(r *Registry) error {
		return r.Register(ToolSpec{Name: "dump", Class: policy.ClassRead},
			HandlerFunc(func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
				return SuccessResult(long), nil
			}))
	}))

	exec, err := a.Execute(context.Background(), singleInput("dump it"))
	require.NoError(t, err)
	events := collectEvents(t, exec)

	detailIdx, completeIdx := -1, -1
	var detail *DetailEvent
	for i, ev := range events {
		switch e := ev.(type) {
		case *DetailEvent:
			detailIdx = i
			detail = e
		case *ToolCompleteEvent:
			completeIdx = i
		}
	}

	// The tool's output surfaces as a bounded Detail excerpt ahead of its
	// completion event.
	require.NotNil(t, detail, "tool output must produce a Detail event")
	assert.Equal(t, 1, detail.Turn)
	assert.Equal(t, long[:detailExcerptLimit]+"...", detail.Text)
	assert.Less(t, detailIdx, completeIdx)
}

func TestExecute_DeniedToolDoesNotAbortSession(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{
		toolTurn(provider.ToolCall{ID: "t1", Name: "writer", Args: json.RawMessage(`{}`)}),
		textTurn("recovered"),
	}}

	a := newTestAgent(t, client,
		WithSandbox(policy.SandboxReadOnly),
		WithTools(func(r *Registry) error {
			return r.Register(ToolSpec{Name: "writer", Class: policy.ClassWrite},
				HandlerFunc(func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
					return SuccessResult("wrote"), nil
				}))
		}))

	exec, err := a.Execute(context.Background(), singleInput("write it"))
	require.NoError(t, err)

	var complete *ToolCompleteEvent
	var completed *CompletedEvent
	for _, ev := range collectEvents(t, exec) {
		switch e := ev.(type) {
		case *ToolCompleteEvent:
			complete = e
		case *CompletedEvent:
			completed = e
		}
	}
	require.NotNil(t, complete)
	assert.True(t, complete.Result.IsError)
	assert.Contains(t, complete.Result.Content, "denied by policy")
	require.NotNil(t, completed, "session must complete despite the denial")
	assert.Equal(t, "end_turn", completed.Reason)
}

func TestExecute_MixedDenyAllowBatch(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{
		toolTurn(
			provider.ToolCall{ID: "t1", Name: "writer", Args: json.RawMessage(`{}`)},
			provider.ToolCall{ID: "t2", Name: "reader", Args: json.RawMessage(`{}`)},
		),
		textTurn("done"),
	}}

	a := newTestAgent(t, client,
		WithSandbox(policy.SandboxReadOnly),
		WithTools(func(r *Registry) error {
			if err := r.Register(ToolSpec{Name: "writer", Class: policy.ClassWrite},
				HandlerFunc(func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
					return SuccessResult("wrote"), nil
				})); err != nil {
				return err
			}
			return r.Register(ToolSpec{Name: "reader", Class: policy.ClassRead},
				HandlerFunc(func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
					return SuccessResult("read ok"), nil
				}))
		}))

	exec, err := a.Execute(context.Background(), singleInput("go"))
	require.NoError(t, err)
	events := collectEvents(t, exec)

	var starts []*ToolStartEvent
	var completes []*ToolCompleteEvent
	for _, ev := range events {
		switch e := ev.(type) {
		case *ToolStartEvent:
			starts = append(starts, e)
		case *ToolCompleteEvent:
			completes = append(completes, e)
		}
	}

	// Both calls start and complete in original order: the denial fills its
	// slot as a failure, the allowed call succeeds, and the follow-up model
	// call still happens.
	require.Len(t, starts, 2)
	require.Len(t, completes, 2)
	assert.Equal(t, "t1", completes[0].Result.CallID)
	assert.True(t, completes[0].Result.IsError)
	assert.Contains(t, completes[0].Result.Content, "denied by policy")
	assert.Equal(t, "t2", completes[1].Result.CallID)
	assert.False(t, completes[1].Result.IsError)
	assert.Equal(t, "read ok", completes[1].Result.Content)

	completed, ok := events[len(events)-1].(*CompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "end_turn", completed.Reason)
	assert.Equal(t, 2, client.calls())
}

func TestExecute_MaxTurns(t *testing.T) {
	// The model asks for tools forever.
	loop := make([]fakeTurn, 10)
	for i := range loop {
		loop[i] = toolTurn(provider.ToolCall{ID: fmt.Sprintf("t%d", i), Name: "noop"})
	}
	client := &fakeClient{turns: loop}

	a := newTestAgent(t, client,
		WithMaxTurns(3),
		WithTools(func(r *Registry) error {
			return r.Register(ToolSpec{Name: "noop", Class: policy.ClassRead},
				HandlerFunc(func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
					return SuccessResult("ok"), nil
				}))
		}))

	exec, err := a.Execute(context.Background(), singleInput("go"))
	require.NoError(t, err)

	events := collectEvents(t, exec)
	completed, ok := events[len(events)-1].(*CompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "max_turns", completed.Reason)
	assert.Equal(t, 3, completed.Turns)
	assert.Equal(t, 3, client.calls())
	require.NoError(t, exec.Join(context.Background()))
	assert.Equal(t, StateCompleted, exec.State())
}

func TestExecute_StopDuringModelStream(t *testing.T) {
	block := make(chan struct{})
	client := &fakeClient{turns: []fakeTurn{{block: block, resp: provider.Response{StopReason: provider.StopEndTurn}}}}
	a := newTestAgent(t, client)

	inputs := make(chan InputMessage, 1)
	inputs <- Input("hi")

	exec, err := a.Execute(context.Background(), inputs)
	require.NoError(t, err)

	// Let the model call park, then stop.
	require.Eventually(t, func() bool { return client.calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, exec.Stop())

	events := collectEvents(t, exec)
	last, ok := events[len(events)-1].(*ErrorEvent)
	require.True(t, ok)
	assert.ErrorIs(t, last.Err, ErrStopped)

	assert.ErrorIs(t, exec.Join(context.Background()), ErrStopped)
	assert.Equal(t, StateStopped, exec.State())
}

func TestExecute_StopUnblocksFullEventBuffer(t *testing.T) {
	// A tiny buffer fills on the Start event, so the first delta parks the
	// pipeline in delivery. Nothing drains the stream.
	client := &fakeClient{turns: []fakeTurn{{
		deltas: []provider.Delta{
			{Kind: provider.DeltaText, Text: "a"},
			{Kind: provider.DeltaText, Text: "b"},
			{Kind: provider.DeltaText, Text: "c"},
		},
		resp: provider.Response{Text: "abc", StopReason: provider.StopEndTurn},
	}}}
	a := newTestAgent(t, client, WithStreamBufferSize(1))

	exec, err := a.Execute(context.Background(), singleInput("hi"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return client.calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, exec.Stop())

	joinCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.ErrorIs(t, exec.Join(joinCtx), ErrStopped)
	assert.Equal(t, StateStopped, exec.State())
}

func TestExecute_PauseAtBoundaryThenResume(t *testing.T) {
	block := make(chan struct{})
	first := textTurn("one")
	first.block = block
	client := &fakeClient{turns: []fakeTurn{first, textTurn("two")}}
	a := newTestAgent(t, client)

	inputs := make(chan InputMessage)
	exec, err := a.Execute(context.Background(), inputs)
	require.NoError(t, err)

	inputs <- Input("first")

	// Pause while the first model call is still in flight, then release it;
	// the pause applies at the boundary after the turn completes.
	require.Eventually(t, func() bool { return client.calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, exec.Pause())
	close(block)

	require.Eventually(t, func() bool {
		return exec.State() == StatePaused
	}, time.Second, 5*time.Millisecond)

	// Input sent while paused is not consumed.
	select {
	case inputs <- Input("second"):
		t.Fatal("paused execution must not consume input")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, exec.Resume())
	select {
	case inputs <- Input("second"):
	case <-time.After(time.Second):
		t.Fatal("resumed execution did not consume input")
	}

	require.Eventually(t, func() bool { return client.calls() == 2 }, time.Second, 5*time.Millisecond)
	close(inputs)

	events := collectEvents(t, exec)
	completed, ok := events[len(events)-1].(*CompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "end_turn", completed.Reason)
	assert.Equal(t, 2, completed.Turns)
}

func TestExecute_InputClosedWithoutWork(t *testing.T) {
	inputs := make(chan InputMessage)
	close(inputs)

	a := newTestAgent(t, &fakeClient{})
	exec, err := a.Execute(context.Background(), inputs)
	require.NoError(t, err)

	events := collectEvents(t, exec)
	completed, ok := events[len(events)-1].(*CompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "input_closed", completed.Reason)
	assert.Equal(t, 0, completed.Turns)
}

func TestExecute_SecondExecutionRejectedWhileRunning(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	client := &fakeClient{turns: []fakeTurn{{block: block, resp: provider.Response{StopReason: provider.StopEndTurn}}}}
	a := newTestAgent(t, client)

	inputs := make(chan InputMessage, 1)
	inputs <- Input("hi")
	exec, err := a.Execute(context.Background(), inputs)
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), make(chan InputMessage))
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, exec.Stop())
	exec.Join(context.Background())
	for range exec.Events() {
	}
}

func TestExecute_ModelFailureIsFatal(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{{err: fmt.Errorf("invalid_request: bad model")}}}
	a := newTestAgent(t, client)

	exec, err := a.Execute(context.Background(), singleInput("hi"))
	require.NoError(t, err)

	events := collectEvents(t, exec)
	last, ok := events[len(events)-1].(*ErrorEvent)
	require.True(t, ok)

	var modelErr *ModelError
	require.ErrorAs(t, last.Err, &modelErr)
	assert.Equal(t, "fake", modelErr.Provider)
	assert.Equal(t, StateErrored, exec.State())
}

func TestExecute_RetryableModelErrorIsRetried(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{
		{err: fmt.Errorf("overloaded_error: try again")},
		textTurn("second attempt worked"),
	}}
	a := newTestAgent(t, client, WithRetry(2, time.Millisecond, 5*time.Millisecond))

	text, err := a.Query(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "second attempt worked", text)
	assert.Equal(t, 2, client.calls())
}

func TestQuery_CollectsPrimaryText(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{{
		deltas: []provider.Delta{
			{Kind: provider.DeltaText, Text: "hello "},
			{Kind: provider.DeltaText, Text: "world"},
		},
		resp: provider.Response{Text: "hello world", StopReason: provider.StopEndTurn},
	}}}
	a := newTestAgent(t, client)

	text, err := a.Query(context.Background(), "greet me")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestStream_IteratesAndCapturesTerminalError(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{{err: fmt.Errorf("invalid_request")}}}
	a := newTestAgent(t, client)

	stream, err := a.Stream(context.Background(), "hi")
	require.NoError(t, err)

	for stream.Next() {
	}
	require.Error(t, stream.Err())
	var modelErr *ModelError
	assert.ErrorAs(t, stream.Err(), &modelErr)
}

func TestExecute_PersistsAndResumes(t *testing.T) {
	store := newStubStore()

	// First run: one exchange, persisted on completion.
	first := newTestAgent(t, &fakeClient{turns: []fakeTurn{textTurn("first answer")}},
		WithSessionStore(store))
	exec, err := first.Execute(context.Background(), singleInput("first question"))
	require.NoError(t, err)
	for range exec.Events() {
	}
	require.NoError(t, exec.Join(context.Background()))
	sessionID := exec.SessionID()

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{sessionID}, ids)

	// Second run resumes the stored history under a fresh session handle.
	resumedClient := &fakeClient{turns: []fakeTurn{textTurn("second answer")}}
	second := newTestAgent(t, resumedClient,
		WithSessionStore(store),
		WithResume(sessionID))
	exec2, err := second.Execute(context.Background(), singleInput("second question"))
	require.NoError(t, err)
	for range exec2.Events() {
	}
	require.NoError(t, exec2.Join(context.Background()))

	session := exec2.Session()
	require.Len(t, session.Messages, 4)
	assert.Equal(t, "first question", session.Messages[0].Content)
	assert.Equal(t, "first answer", session.Messages[1].Content)
	assert.Equal(t, "second question", session.Messages[2].Content)
	assert.Equal(t, "second answer", session.Messages[3].Content)
}

func TestExecute_ResumeUnknownSessionFailsFast(t *testing.T) {
	a := newTestAgent(t, &fakeClient{},
		WithSessionStore(newStubStore()),
		WithResume("ses_missing"))

	_, err := a.Execute(context.Background(), singleInput("hi"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExecute_ReasoningDeltasBecomeReasoningEvents(t *testing.T) {
	client := &fakeClient{turns: []fakeTurn{{
		deltas: []provider.Delta{
			{Kind: provider.DeltaReasoning, Text: "thinking..."},
			{Kind: provider.DeltaText, Text: "answer"},
		},
		resp: provider.Response{Text: "answer", StopReason: provider.StopEndTurn},
	}}}
	a := newTestAgent(t, client)

	exec, err := a.Execute(context.Background(), singleInput("hi"))
	require.NoError(t, err)

	var sawReasoning bool
	for _, ev := range collectEvents(t, exec) {
		if r, ok := ev.(*ReasoningEvent); ok {
			sawReasoning = true
			assert.Equal(t, "thinking...", r.Text)
		}
	}
	assert.True(t, sawReasoning)
}
