package agentcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/arcline/agentcore/policy"
)

// dispatcher executes one turn's tool call batch: bounded parallelism,
// policy gating, schema validation, per-call timeouts and panic isolation.
// Results come back in the original call order regardless of completion
// order, one result per call, always.
type dispatcher struct {
	registry     *Registry
	gate         *policy.Gate
	broker       *policy.Broker
	logger       *slog.Logger
	maxParallel  int
	toolTimeout  time.Duration
	approvalTTL  time.Duration
	graceTimeout time.Duration
}

type indexedResult struct {
	idx    int
	result ToolResult
}

// Run executes a batch of tool calls. stop is the session's stop signal: once
// it fires, every call's context is cancelled immediately so cooperative
// handlers unwind at their next checkpoint and their own cancelled results
// are recorded. The grace timer only backstops handlers that ignore the
// signal; slots still outstanding when it expires are recorded as cancelled
// failures.
func (d *dispatcher) Run(ctx context.Context, stop <-chan struct{}, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	// runCtx gates queue admission, approval waits and handler execution.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Buffered so late finishers after a grace expiry never block their
	// goroutines on a collector that has already returned.
	completed := make(chan indexedResult, len(calls))
	sem := make(chan struct{}, d.maxParallel)

	for i, call := range calls {
		go func(idx int, call ToolCall) {
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				completed <- indexedResult{idx, ToolResult{
					CallID:  call.ID,
					Content: "cancelled before execution",
					IsError: true,
				}}
				return
			}
			defer func() { <-sem }()
			completed <- indexedResult{idx, d.execute(runCtx, call)}
		}(i, call)
	}

	pending := len(calls)
	filled := make([]bool, len(calls))
	stopC := stop
	var graceC <-chan time.Time
	var graceTimer *time.Timer

	for pending > 0 {
		select {
		case r := <-completed:
			results[r.idx] = r.result
			filled[r.idx] = true
			pending--
		case <-stopC:
			stopC = nil
			cancelRun()
			graceTimer = time.NewTimer(d.graceTimeout)
			graceC = graceTimer.C
		case <-graceC:
			graceC = nil
			cancelRun()
			d.logger.Warn("tool calls outstanding after stop grace period", "count", pending)
			for idx := range results {
				if !filled[idx] {
					results[idx] = ToolResult{
						CallID:  calls[idx].ID,
						Content: "cancelled: stop grace period expired",
						IsError: true,
					}
					filled[idx] = true
				}
			}
			pending = 0
		case <-ctx.Done():
			for idx := range results {
				if !filled[idx] {
					results[idx] = ToolResult{
						CallID:  calls[idx].ID,
						Content: "cancelled: " + ctx.Err().Error(),
						IsError: true,
					}
					filled[idx] = true
				}
			}
			pending = 0
		}
	}
	if graceTimer != nil {
		graceTimer.Stop()
	}
	return results
}

// execute runs a single call end to end. Every outcome, including policy
// denial, validation failure, handler error, cancellation, timeout and panic,
// becomes a ToolResult; the caller never sees an error.
func (d *dispatcher) execute(runCtx context.Context, call ToolCall) (result ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked",
				"tool", call.Name,
				"call_id", call.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			result = ToolResult{
				CallID:  call.ID,
				Content: fmt.Sprintf("tool %s panicked: %v", call.Name, r),
				IsError: true,
			}
		}
	}()

	spec, handler, err := d.registry.Resolve(call.Name)
	if err != nil {
		return ToolResult{CallID: call.ID, Content: err.Error(), IsError: true}
	}

	decision := d.gate.Authorize(call.Name, spec.Class, call.Args)
	switch decision.Verdict {
	case policy.Deny:
		d.logger.Info("tool call denied", "tool", call.Name, "call_id", call.ID, "reason", decision.Reason)
		return ToolResult{
			CallID:  call.ID,
			Content: "denied by policy: " + decision.Reason,
			IsError: true,
		}
	case policy.Ask:
		outcome, err := d.broker.Await(runCtx, call.ID, call.Name, call.Args, d.approvalTTL)
		if err != nil {
			if errors.Is(err, policy.ErrApprovalTimeout) {
				return ToolResult{CallID: call.ID, Content: "approval timed out", IsError: true}
			}
			return ToolResult{CallID: call.ID, Content: "cancelled while awaiting approval", IsError: true}
		}
		if !outcome.Approved {
			reason := outcome.Reason
			if reason == "" {
				reason = "request denied"
			}
			return ToolResult{CallID: call.ID, Content: "approval denied: " + reason, IsError: true}
		}
	}

	if err := d.registry.Validate(call.Name, call.Args); err != nil {
		return ToolResult{
			CallID:  call.ID,
			Content: "invalid arguments: " + err.Error(),
			IsError: true,
		}
	}

	callCtx, cancel := context.WithTimeout(runCtx, d.toolTimeout)
	defer cancel()

	start := time.Now()
	res, err := handler.Invoke(callCtx, call.Args)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ToolResult{
				CallID:  call.ID,
				Content: fmt.Sprintf("tool %s timed out after %s", call.Name, d.toolTimeout),
				IsError: true,
			}
		}
		if errors.Is(err, context.Canceled) {
			return ToolResult{CallID: call.ID, Content: "cancelled", IsError: true}
		}
		return ToolResult{CallID: call.ID, Content: err.Error(), IsError: true}
	}
	if res == nil {
		return ToolResult{CallID: call.ID, Content: "tool returned no result", IsError: true}
	}

	d.logger.Debug("tool call finished",
		"tool", call.Name,
		"call_id", call.ID,
		"is_error", res.IsError,
		"duration", elapsed)

	out := *res
	out.CallID = call.ID
	return out
}
