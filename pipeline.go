package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arcline/agentcore/internal/cost"
	"github.com/arcline/agentcore/mcp"
	"github.com/arcline/agentcore/policy"
	"github.com/arcline/agentcore/provider"
)

// mcpConnectTimeout bounds server handshakes during New.
const mcpConnectTimeout = 30 * time.Second

// Agent is the embeddable execution runtime. One Agent runs one execution at
// a time; its configuration, tool registry and MCP connections are fixed at
// construction.
type Agent struct {
	cfg      Config
	client   provider.Client
	registry *Registry
	gate     *policy.Gate
	broker   *policy.Broker
	mcpMgr   *mcp.Manager

	mu      sync.Mutex
	current *Execution
}

// New builds an Agent: validates configuration, constructs the model client,
// runs tool registrars and connects configured MCP servers.
func New(opts ...Option) (*Agent, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	client := cfg.client
	if client == nil {
		client, err = provider.New(provider.Config{
			Provider: cfg.Provider,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
	}

	registry := NewRegistry()
	for _, register := range cfg.registrars {
		if err := register(registry); err != nil {
			return nil, err
		}
	}

	a := &Agent{
		cfg:      cfg,
		client:   client,
		registry: registry,
		gate:     policy.NewGate(cfg.Sandbox, cfg.Approval, cfg.Rules...),
		broker:   policy.NewBroker(),
	}

	if len(cfg.MCPServers) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), mcpConnectTimeout)
		defer cancel()
		if err := a.connectMCP(ctx); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// connectMCP connects all configured servers and bridges their tools into
// the registry under mcp__{server}__{tool} names.
func (a *Agent) connectMCP(ctx context.Context) error {
	mgr := mcp.NewManager(a.cfg.Logger)
	if err := mgr.Connect(ctx, a.cfg.MCPServers); err != nil {
		return err
	}
	a.mcpMgr = mgr

	for _, bt := range mgr.BridgedTools() {
		fullName := bt.FullName
		spec := ToolSpec{
			Name:        fullName,
			Description: bt.Description,
			InputSchema: bt.InputSchema,
			Kind:        ToolMCP,
			Class:       policy.ClassWrite,
		}
		handler := HandlerFunc(func(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
			content, isErr, err := mgr.CallTool(ctx, fullName, args)
			if err != nil {
				return FailureResult(fmt.Sprintf("mcp tool error: %s", err.Error())), nil
			}
			if isErr {
				return FailureResult(content), nil
			}
			return SuccessResult(content), nil
		})
		if err := a.registry.Register(spec, handler); err != nil {
			mgr.Close()
			return err
		}
	}
	return nil
}

// Tools exposes the agent's tool registry.
func (a *Agent) Tools() *Registry { return a.registry }

// Approvals exposes the broker holding tool calls suspended on approval.
func (a *Agent) Approvals() *policy.Broker { return a.broker }

// Close releases MCP connections. The Agent is unusable afterwards.
func (a *Agent) Close() error {
	if a.mcpMgr != nil {
		return a.mcpMgr.Close()
	}
	return nil
}

// Execution is a running session: an ordered event stream plus the control
// surface over its lifecycle.
type Execution struct {
	sessionID string
	events    chan Event
	machine   *stateMachine
	broker    *policy.Broker
	session   *Session
}

// Execute starts an execution consuming input messages from inputs. Events
// stream on Events until exactly one terminal event, after which the channel
// closes. Returns ErrAlreadyRunning if an execution is already in flight.
func (a *Agent) Execute(ctx context.Context, inputs <-chan InputMessage) (*Execution, error) {
	a.mu.Lock()
	if a.current != nil && !a.current.machine.State().Terminal() {
		a.mu.Unlock()
		return nil, ErrAlreadyRunning
	}

	session := NewSession()
	session.Model = a.cfg.Model
	if a.cfg.ResumeSessionID != "" {
		stored, err := a.cfg.Store.Load(ctx, a.cfg.ResumeSessionID)
		if err != nil {
			a.mu.Unlock()
			return nil, fmt.Errorf("agentcore: resume session: %w", err)
		}
		session = stored.Clone()
		session.Model = a.cfg.Model
	}

	exec := &Execution{
		sessionID: session.ID,
		events:    make(chan Event, a.cfg.StreamBufferSize),
		machine:   newStateMachine(),
		broker:    a.broker,
		session:   session,
	}
	a.current = exec
	a.mu.Unlock()

	go a.run(ctx, exec, inputs)
	return exec, nil
}

// run is the pipeline goroutine: it owns the session history and the event
// channel for the execution's entire lifetime.
func (a *Agent) run(ctx context.Context, exec *Execution, inputs <-chan InputMessage) {
	defer close(exec.events)

	if err := exec.machine.Begin(); err != nil {
		// Stopped before starting; the machine is already settled.
		exec.deliver(ctx, &ErrorEvent{Err: ErrStopped})
		return
	}

	exec.deliver(ctx, &StartEvent{SessionID: exec.sessionID, Model: a.cfg.Model})

	eng := &engine{
		cfg:      a.cfg,
		client:   a.client,
		registry: a.registry,
		dispatcher: &dispatcher{
			registry:     a.registry,
			gate:         a.gate,
			broker:       a.broker,
			logger:       a.cfg.Logger,
			maxParallel:  a.cfg.MaxParallelTools,
			toolTimeout:  a.cfg.ToolTimeout,
			approvalTTL:  a.cfg.ApprovalTimeout,
			graceTimeout: a.cfg.StopGraceTimeout,
		},
		tracker: cost.NewTracker(a.cfg.MaxBudget, nil),
		machine: exec.machine,
		session: exec.session,
		emit:    func(ev Event) bool { return exec.deliver(ctx, ev) },
	}

	err := a.consume(ctx, exec, eng, inputs)
	a.settle(ctx, exec, eng, err)
}

// consume is the input loop: one runInput cycle per message, with lifecycle
// boundaries applied between them.
func (a *Agent) consume(ctx context.Context, exec *Execution, eng *engine, inputs <-chan InputMessage) error {
	for {
		if err := exec.machine.TurnBoundary(ctx); err != nil {
			return err
		}
		select {
		case input, ok := <-inputs:
			if !ok {
				return nil
			}
			if err := eng.runInput(ctx, input); err != nil {
				return err
			}
			a.persist(ctx, exec)
		case <-exec.machine.StopSignal():
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// settle emits the single terminal event and moves the machine to its final
// state.
func (a *Agent) settle(ctx context.Context, exec *Execution, eng *engine, err error) {
	usage := eng.tracker.TotalUsage()
	completed := func(reason string) *CompletedEvent {
		return &CompletedEvent{
			Reason: reason,
			Turns:  exec.machine.Turns(),
			Usage:  Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens},
			Cost:   eng.tracker.TotalCost(),
		}
	}

	switch {
	case err == nil:
		reason := "end_turn"
		if exec.machine.Turns() == 0 {
			reason = "input_closed"
		}
		exec.deliver(ctx, completed(reason))
		exec.machine.Complete()
	case errors.Is(err, errMaxTurns):
		a.cfg.Logger.Info("turn budget exhausted", "session", exec.sessionID, "turns", exec.machine.Turns())
		exec.deliver(ctx, completed("max_turns"))
		exec.machine.Complete()
	case errors.Is(err, ErrStopped):
		exec.deliver(ctx, &ErrorEvent{Err: ErrStopped})
		exec.machine.ConfirmStopped()
	default:
		a.cfg.Logger.Error("execution failed", "session", exec.sessionID, "error", err)
		exec.deliver(ctx, &ErrorEvent{Err: err})
		exec.machine.Fail(err)
	}

	a.persist(ctx, exec)
}

// persist saves the session when a store is configured. Persistence failures
// are logged, never fatal.
func (a *Agent) persist(ctx context.Context, exec *Execution) {
	if a.cfg.Store == nil {
		return
	}
	exec.session.UpdatedAt = time.Now().UTC()
	if err := a.cfg.Store.Save(ctx, exec.session); err != nil {
		a.cfg.Logger.Warn("session save failed", "session", exec.sessionID, "error", err)
	}
}

// deliver sends an event, blocking while the buffer is full. A stop request
// or context end breaks the wait so a consumer that stopped reading can never
// wedge the pipeline. Returns false when the event could not be delivered.
func (x *Execution) deliver(ctx context.Context, ev Event) bool {
	select {
	case x.events <- ev:
		return true
	case <-ctx.Done():
	case <-x.machine.StopSignal():
	}
	// Last resort so a terminal event is not silently lost when the
	// consumer is still draining.
	select {
	case x.events <- ev:
		return true
	default:
		return false
	}
}

// Events is the ordered output stream. It closes after the terminal event.
func (x *Execution) Events() <-chan Event { return x.events }

// SessionID returns the execution's session ID.
func (x *Execution) SessionID() string { return x.sessionID }

// State returns the current lifecycle state.
func (x *Execution) State() SessionState { return x.machine.State() }

// Turns returns how many turns have started.
func (x *Execution) Turns() int { return x.machine.Turns() }

// Pause requests a pause at the next turn boundary. Streaming and tool
// execution already in flight run to completion first.
func (x *Execution) Pause() error { return x.machine.RequestPause() }

// Resume clears a pause and wakes the execution.
func (x *Execution) Resume() error { return x.machine.RequestResume() }

// Stop requests termination: the model stream is cancelled, queued tool
// calls abort, and in-flight tools get the stop grace period to unwind.
func (x *Execution) Stop() error { return x.machine.RequestStop() }

// Join blocks until the execution reaches a terminal state and returns its
// settling error: nil on completion, ErrStopped after a stop.
func (x *Execution) Join(ctx context.Context) error {
	return x.machine.Wait(ctx)
}

// Approvals exposes the broker holding this execution's suspended calls.
func (x *Execution) Approvals() *policy.Broker { return x.broker }

// Session returns a snapshot of the session state. The pipeline goroutine
// owns the session while running; call this only after Join has returned.
func (x *Execution) Session() *Session {
	return x.session.Clone()
}

// Query runs a single prompt to completion and returns the assistant's final
// text. It is the simplest entry point; Execute offers streaming and control.
func (a *Agent) Query(ctx context.Context, prompt string) (string, error) {
	inputs := make(chan InputMessage, 1)
	inputs <- Input(prompt)
	close(inputs)

	exec, err := a.Execute(ctx, inputs)
	if err != nil {
		return "", err
	}

	var text string
	for ev := range exec.Events() {
		switch e := ev.(type) {
		case *PrimaryEvent:
			text += e.Text
		case *ErrorEvent:
			return text, e.Err
		}
	}
	return text, nil
}

// Stream runs a single prompt and returns an iterator over its events.
func (a *Agent) Stream(ctx context.Context, prompt string) (*Stream, error) {
	inputs := make(chan InputMessage, 1)
	inputs <- Input(prompt)
	close(inputs)

	exec, err := a.Execute(ctx, inputs)
	if err != nil {
		return nil, err
	}
	return newStream(exec), nil
}
