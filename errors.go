package agentcore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the runtime and its public API.
var (
	// ErrDuplicateTool is returned when a tool name is registered twice.
	// Collisions between builtin and custom tools are rejected rather than
	// silently overridden, so a custom tool can never shadow a builtin.
	ErrDuplicateTool = errors.New("agentcore: duplicate tool name")

	// ErrUnknownTool is returned when a tool call names an unregistered tool.
	ErrUnknownTool = errors.New("agentcore: unknown tool")

	// ErrAlreadyRunning is returned by Execute when the agent already has an
	// execution in flight.
	ErrAlreadyRunning = errors.New("agentcore: execution already running")

	// ErrNotRunning is returned by control operations on an execution that
	// has not started or has already reached a terminal state.
	ErrNotRunning = errors.New("agentcore: execution not running")

	// ErrStopped is carried by the terminal Error event when an execution
	// ends because Stop was requested.
	ErrStopped = errors.New("agentcore: execution stopped")

	// ErrBudgetExhausted is carried by the terminal Error event when the
	// configured cost budget has been spent.
	ErrBudgetExhausted = errors.New("agentcore: budget exhausted")
)

// ConfigError reports an invalid or contradictory configuration value.
// It is returned by New before any execution starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("agentcore: invalid config: %s: %s", e.Field, e.Reason)
}

// ModelError reports a model transport or provider failure that the retry
// policy could not recover from. It is fatal to the session.
type ModelError struct {
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("agentcore: model error (%s): %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }
