package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/agentcore/policy"
)

func testDispatcher(t *testing.T, r *Registry, gate *policy.Gate) *dispatcher {
	t.Helper()
	if gate == nil {
		gate = policy.NewGate(policy.SandboxFullAccess, policy.ApproveNever)
	}
	return &dispatcher{
		registry:     r,
		gate:         gate,
		broker:       policy.NewBroker(),
		logger:       slog.New(slog.DiscardHandler),
		maxParallel:  4,
		toolTimeout:  time.Second,
		approvalTTL:  time.Second,
		graceTimeout: 50 * time.Millisecond,
	}
}

func registerFunc(t *testing.T, r *Registry, name string, class policy.ToolClass, fn func(ctx context.Context, args json.RawMessage) (*ToolResult, error)) {
	t.Helper()
	require.NoError(t, r.Register(ToolSpec{Name: name, Class: class}, HandlerFunc(fn)))
}

func TestDispatcher_ResultsInCallOrder(t *testing.T) {
	r := NewRegistry()
	registerFunc(t, r, "echo", policy.ClassRead, func(_ context.Context, args json.RawMessage) (*ToolResult, error) {
		var in struct {
			Value string        `json:"value"`
			Sleep time.Duration `json:"sleep"`
		}
		require.NoError(t, json.Unmarshal(args, &in))
		time.Sleep(in.Sleep)
		return SuccessResult(in.Value), nil
	})

	d := testDispatcher(t, r, nil)
	calls := []ToolCall{
		{ID: "c1", Name: "echo", Args: json.RawMessage(fmt.Sprintf(`{"value":"slow","sleep":%d}`, 50*time.Millisecond))},
		{ID: "c2", Name: "echo", Args: json.RawMessage(`{"value":"fast"}`)},
		{ID: "c3", Name: "echo", Args: json.RawMessage(fmt.Sprintf(`{"value":"medium","sleep":%d}`, 20*time.Millisecond))},
	}

	results := d.Run(context.Background(), make(chan struct{}), calls)
	require.Len(t, results, 3)
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "slow", results[0].Content)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, "fast", results[1].Content)
	assert.Equal(t, "c3", results[2].CallID)
	assert.Equal(t, "medium", results[2].Content)
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	var active, peak int64
	var mu sync.Mutex

	r := NewRegistry()
	registerFunc(t, r, "probe", policy.ClassRead, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		cur := atomic.AddInt64(&active, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return SuccessResult("ok"), nil
	})

	d := testDispatcher(t, r, nil)
	d.maxParallel = 2

	calls := make([]ToolCall, 6)
	for i := range calls {
		calls[i] = ToolCall{ID: fmt.Sprintf("c%d", i), Name: "probe"}
	}
	results := d.Run(context.Background(), make(chan struct{}), calls)

	require.Len(t, results, 6)
	for _, res := range results {
		assert.False(t, res.IsError)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(2))
}

func TestDispatcher_PanicBecomesFailureResult(t *testing.T) {
	r := NewRegistry()
	registerFunc(t, r, "boom", policy.ClassRead, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		panic("kaboom")
	})
	registerFunc(t, r, "ok", policy.ClassRead, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		return SuccessResult("fine"), nil
	})

	d := testDispatcher(t, r, nil)
	results := d.Run(context.Background(), make(chan struct{}), []ToolCall{
		{ID: "c1", Name: "boom"},
		{ID: "c2", Name: "ok"},
	})

	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "kaboom")
	assert.False(t, results[1].IsError)
	assert.Equal(t, "fine", results[1].Content)
}

func TestDispatcher_UnknownToolIsFailureResult(t *testing.T) {
	d := testDispatcher(t, NewRegistry(), nil)
	results := d.Run(context.Background(), make(chan struct{}), []ToolCall{{ID: "c1", Name: "nope"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "unknown tool")
}

func TestDispatcher_DenyIsNonFatal(t *testing.T) {
	r := NewRegistry()
	registerFunc(t, r, "writer", policy.ClassWrite, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		return SuccessResult("wrote"), nil
	})
	registerFunc(t, r, "reader", policy.ClassRead, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		return SuccessResult("read"), nil
	})

	gate := policy.NewGate(policy.SandboxReadOnly, policy.ApproveNever)
	d := testDispatcher(t, r, gate)

	results := d.Run(context.Background(), make(chan struct{}), []ToolCall{
		{ID: "c1", Name: "writer"},
		{ID: "c2", Name: "reader"},
	})

	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "denied by policy")
	assert.False(t, results[1].IsError)
	assert.Equal(t, "read", results[1].Content)
}

func TestDispatcher_InvalidArgumentsRejected(t *testing.T) {
	r := NewRegistry()
	spec := ToolSpec{
		Name:        "strict",
		Class:       policy.ClassRead,
		InputSchema: json.RawMessage(`{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`),
	}
	require.NoError(t, r.Register(spec, HandlerFunc(func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		return SuccessResult("ran"), nil
	})))

	d := testDispatcher(t, r, nil)
	results := d.Run(context.Background(), make(chan struct{}), []ToolCall{
		{ID: "c1", Name: "strict", Args: json.RawMessage(`{"n":"not a number"}`)},
		{ID: "c2", Name: "strict", Args: json.RawMessage(`{"n":3}`)},
	})

	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "invalid arguments")
	assert.False(t, results[1].IsError)
}

func TestDispatcher_ToolTimeout(t *testing.T) {
	r := NewRegistry()
	registerFunc(t, r, "sleepy", policy.ClassRead, func(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
		select {
		case <-time.After(time.Second):
			return SuccessResult("late"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	d := testDispatcher(t, r, nil)
	d.toolTimeout = 30 * time.Millisecond

	results := d.Run(context.Background(), make(chan struct{}), []ToolCall{{ID: "c1", Name: "sleepy"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "timed out")
}

func TestDispatcher_StopGraceExpiresStragglers(t *testing.T) {
	release := make(chan struct{})
	r := NewRegistry()
	registerFunc(t, r, "stubborn", policy.ClassRead, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		// Ignores cancellation until released.
		<-release
		return SuccessResult("done"), nil
	})

	d := testDispatcher(t, r, nil)
	d.graceTimeout = 30 * time.Millisecond

	stop := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(stop)
	}()

	start := time.Now()
	results := d.Run(context.Background(), stop, []ToolCall{{ID: "c1", Name: "stubborn"}})
	close(release)

	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "grace period expired")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDispatcher_StopCancelsQueuedCalls(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := NewRegistry()
	registerFunc(t, r, "gate", policy.ClassRead, func(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
		close(started)
		select {
		case <-release:
			return SuccessResult("done"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	registerFunc(t, r, "queued", policy.ClassRead, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		return SuccessResult("ran"), nil
	})

	d := testDispatcher(t, r, nil)
	d.maxParallel = 1
	d.graceTimeout = 200 * time.Millisecond

	stop := make(chan struct{})
	go func() {
		<-started
		close(stop)
	}()
	defer close(release)

	results := d.Run(context.Background(), stop, []ToolCall{
		{ID: "c1", Name: "gate"},
		{ID: "c2", Name: "queued"},
	})

	// The in-flight call observed cancellation; the queued call was
	// cancelled before it started.
	assert.True(t, results[0].IsError)
	assert.Equal(t, "cancelled", results[0].Content)
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "cancelled before execution")
}

func TestDispatcher_StopCancelsInFlightHandlers(t *testing.T) {
	started := make(chan struct{})
	r := NewRegistry()
	registerFunc(t, r, "cooperative", policy.ClassRead, func(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
		close(started)
		<-ctx.Done()
		return SuccessResult("unwound at checkpoint"), nil
	})

	d := testDispatcher(t, r, nil)
	d.graceTimeout = 2 * time.Second

	stop := make(chan struct{})
	go func() {
		<-started
		close(stop)
	}()

	start := time.Now()
	results := d.Run(context.Background(), stop, []ToolCall{{ID: "c1", Name: "cooperative"}})

	// The handler sees the cancellation signal as soon as stop fires and its
	// own result is kept; the grace timer is never the limiting factor.
	require.Len(t, results, 1)
	assert.False(t, results[0].IsError)
	assert.Equal(t, "unwound at checkpoint", results[0].Content)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatcher_ApprovalApproveAndDeny(t *testing.T) {
	r := NewRegistry()
	registerFunc(t, r, "danger", policy.ClassExec, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		return SuccessResult("executed"), nil
	})

	gate := policy.NewGate(policy.SandboxFullAccess, policy.ApproveOnRequest)
	d := testDispatcher(t, r, gate)
	d.approvalTTL = time.Second

	// External approver: approve the first pending request, deny the second.
	decided := make(chan struct{})
	go func() {
		defer close(decided)
		var seen []string
		for len(seen) < 2 {
			for _, req := range d.broker.Pending() {
				switch req.CallID {
				case "c1":
					if err := d.broker.Approve(req.Token, "tester"); err == nil {
						seen = append(seen, "c1")
					}
				case "c2":
					if err := d.broker.Deny(req.Token, "tester", "not allowed"); err == nil {
						seen = append(seen, "c2")
					}
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	results := d.Run(context.Background(), make(chan struct{}), []ToolCall{
		{ID: "c1", Name: "danger"},
		{ID: "c2", Name: "danger"},
	})
	<-decided

	assert.False(t, results[0].IsError)
	assert.Equal(t, "executed", results[0].Content)
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "approval denied")
	assert.Contains(t, results[1].Content, "not allowed")
}

func TestDispatcher_ApprovalTimeout(t *testing.T) {
	r := NewRegistry()
	registerFunc(t, r, "danger", policy.ClassExec, func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
		return SuccessResult("executed"), nil
	})

	gate := policy.NewGate(policy.SandboxFullAccess, policy.ApproveOnRequest)
	d := testDispatcher(t, r, gate)
	d.approvalTTL = 20 * time.Millisecond

	results := d.Run(context.Background(), make(chan struct{}), []ToolCall{{ID: "c1", Name: "danger"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "approval timed out")
}

func TestDispatcher_EmptyBatch(t *testing.T) {
	d := testDispatcher(t, NewRegistry(), nil)
	results := d.Run(context.Background(), make(chan struct{}), nil)
	assert.Empty(t, results)
}
