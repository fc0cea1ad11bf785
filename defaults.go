package agentcore

import "time"

// Configuration defaults applied by New when an option is left unset.
const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"

	// DefaultProvider selects the model transport.
	DefaultProvider = "anthropic"

	// DefaultMaxTurns bounds the number of turn-engine cycles per session.
	DefaultMaxTurns = 50

	// DefaultMaxOutputTokens is the per-response output token cap.
	DefaultMaxOutputTokens = 16_384

	// DefaultMaxParallelTools bounds concurrent tool executions in a batch.
	DefaultMaxParallelTools = 4

	// DefaultStreamBufferSize is the output event channel buffer. Once full,
	// backpressure throttles the turn engine's streaming.
	DefaultStreamBufferSize = 64

	// DefaultToolTimeout bounds a single tool execution.
	DefaultToolTimeout = 2 * time.Minute

	// DefaultStopGraceTimeout is how long Stopping waits for in-flight tool
	// handlers to unwind before their results are recorded as cancelled.
	DefaultStopGraceTimeout = 10 * time.Second

	// DefaultApprovalTimeout is how long a call suspended on approval waits
	// for an external decision before it is recorded as denied.
	DefaultApprovalTimeout = 5 * time.Minute

	// DefaultRetryAttempts is the number of model call attempts for
	// retryable transport errors.
	DefaultRetryAttempts = 3

	// DefaultRetryBaseDelay is the initial backoff between model retries.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultRetryMaxDelay caps the exponential backoff.
	DefaultRetryMaxDelay = 8 * time.Second
)
