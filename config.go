package agentcore

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcline/agentcore/mcp"
	"github.com/arcline/agentcore/policy"
	"github.com/arcline/agentcore/provider"
)

// Config holds everything an Agent needs. Build one through New with
// functional options; the zero value is not usable.
type Config struct {
	Model        string
	Provider     string
	APIKey       string
	BaseURL      string
	SystemPrompt string

	MaxTurns         int
	MaxOutputTokens  int
	MaxParallelTools int
	StreamBufferSize int

	ToolTimeout      time.Duration
	StopGraceTimeout time.Duration
	ApprovalTimeout  time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// MaxBudget caps cumulative model spend in USD. Zero means unlimited.
	MaxBudget decimal.Decimal

	Sandbox  policy.SandboxPolicy
	Approval policy.ApprovalMode
	Rules    []policy.Rule

	// Workdir scopes builtin file tools. Empty means the process working
	// directory.
	Workdir string

	Logger *slog.Logger
	Store  Store

	// ResumeSessionID loads prior history from Store before the first turn.
	ResumeSessionID string

	MCPServers []mcp.ServerConfig

	// registrars populate the tool registry during New, in option order.
	registrars []func(*Registry) error

	// client overrides the provider transport, for tests.
	client provider.Client
}

// Option mutates a Config during New.
type Option func(*Config)

// WithModel sets the model identifier.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithProvider selects the model transport, "anthropic" or "openai".
func WithProvider(name string) Option {
	return func(c *Config) { c.Provider = name }
}

// WithAPIKey sets explicit credentials. Unset defers to the provider's
// environment variables.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the provider endpoint (OpenAI-compatible gateways).
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithSystemPrompt sets the system prompt sent on every turn.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithMaxTurns bounds the number of turns per session.
func WithMaxTurns(n int) Option {
	return func(c *Config) { c.MaxTurns = n }
}

// WithMaxOutputTokens caps output tokens per model response.
func WithMaxOutputTokens(n int) Option {
	return func(c *Config) { c.MaxOutputTokens = n }
}

// WithMaxParallelTools bounds concurrent tool executions within a batch.
func WithMaxParallelTools(n int) Option {
	return func(c *Config) { c.MaxParallelTools = n }
}

// WithStreamBufferSize sets the output event channel buffer. A full buffer
// applies backpressure to the turn engine.
func WithStreamBufferSize(n int) Option {
	return func(c *Config) { c.StreamBufferSize = n }
}

// WithToolTimeout bounds a single tool execution.
func WithToolTimeout(d time.Duration) Option {
	return func(c *Config) { c.ToolTimeout = d }
}

// WithStopGraceTimeout sets how long a stop waits for in-flight tools.
func WithStopGraceTimeout(d time.Duration) Option {
	return func(c *Config) { c.StopGraceTimeout = d }
}

// WithApprovalTimeout sets how long a suspended call waits for a decision.
func WithApprovalTimeout(d time.Duration) Option {
	return func(c *Config) { c.ApprovalTimeout = d }
}

// WithRetry configures model call retries for transient transport errors.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Config) {
		c.RetryAttempts = attempts
		c.RetryBaseDelay = baseDelay
		c.RetryMaxDelay = maxDelay
	}
}

// WithMaxBudget caps cumulative model spend in USD.
func WithMaxBudget(usd decimal.Decimal) Option {
	return func(c *Config) { c.MaxBudget = usd }
}

// WithSandbox sets the sandbox policy for tool execution.
func WithSandbox(p policy.SandboxPolicy) Option {
	return func(c *Config) { c.Sandbox = p }
}

// WithApprovalMode sets when tool calls require external confirmation.
func WithApprovalMode(m policy.ApprovalMode) Option {
	return func(c *Config) { c.Approval = m }
}

// WithRules adds declarative per-tool policy rules. Rules take precedence
// over the sandbox and approval defaults.
func WithRules(rules ...policy.Rule) Option {
	return func(c *Config) { c.Rules = append(c.Rules, rules...) }
}

// WithWorkdir scopes builtin file tools to a directory.
func WithWorkdir(dir string) Option {
	return func(c *Config) { c.Workdir = dir }
}

// WithTools runs a registrar against the agent's tool registry during New.
// The tools package uses this to install the builtin tool set.
func WithTools(register func(*Registry) error) Option {
	return func(c *Config) { c.registrars = append(c.registrars, register) }
}

// WithTool registers a typed custom tool, deriving its input schema from the
// type parameter's struct tags.
func WithTool[T any](t Tool[T]) Option {
	return WithTools(func(r *Registry) error {
		return RegisterTool(r, t)
	})
}

// WithLogger sets the structured logger. Unset discards log output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithSessionStore enables session persistence.
func WithSessionStore(s Store) Option {
	return func(c *Config) { c.Store = s }
}

// WithResume loads a stored session's history before the first turn.
// Requires WithSessionStore.
func WithResume(sessionID string) Option {
	return func(c *Config) { c.ResumeSessionID = sessionID }
}

// WithMCPServers connects MCP servers during session setup and registers
// their tools.
func WithMCPServers(servers ...mcp.ServerConfig) Option {
	return func(c *Config) { c.MCPServers = append(c.MCPServers, servers...) }
}

// withClient overrides the model transport. Used by tests.
func withClient(cl provider.Client) Option {
	return func(c *Config) { c.client = cl }
}

// newConfig applies defaults and validates.
func newConfig(opts []Option) (Config, error) {
	c := Config{
		Model:            DefaultModel,
		Provider:         DefaultProvider,
		MaxTurns:         DefaultMaxTurns,
		MaxOutputTokens:  DefaultMaxOutputTokens,
		MaxParallelTools: DefaultMaxParallelTools,
		StreamBufferSize: DefaultStreamBufferSize,
		ToolTimeout:      DefaultToolTimeout,
		StopGraceTimeout: DefaultStopGraceTimeout,
		ApprovalTimeout:  DefaultApprovalTimeout,
		RetryAttempts:    DefaultRetryAttempts,
		RetryBaseDelay:   DefaultRetryBaseDelay,
		RetryMaxDelay:    DefaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(&c)
	}

	if c.Model == "" {
		return c, &ConfigError{Field: "Model", Reason: "must not be empty"}
	}
	if c.Provider != "anthropic" && c.Provider != "openai" {
		return c, &ConfigError{Field: "Provider", Reason: "must be \"anthropic\" or \"openai\""}
	}
	if c.MaxTurns <= 0 {
		return c, &ConfigError{Field: "MaxTurns", Reason: "must be positive"}
	}
	if c.MaxOutputTokens <= 0 {
		return c, &ConfigError{Field: "MaxOutputTokens", Reason: "must be positive"}
	}
	if c.MaxParallelTools <= 0 {
		return c, &ConfigError{Field: "MaxParallelTools", Reason: "must be positive"}
	}
	if c.StreamBufferSize <= 0 {
		return c, &ConfigError{Field: "StreamBufferSize", Reason: "must be positive"}
	}
	if c.ToolTimeout <= 0 {
		return c, &ConfigError{Field: "ToolTimeout", Reason: "must be positive"}
	}
	if c.StopGraceTimeout < 0 {
		return c, &ConfigError{Field: "StopGraceTimeout", Reason: "must not be negative"}
	}
	if c.ApprovalTimeout <= 0 {
		return c, &ConfigError{Field: "ApprovalTimeout", Reason: "must be positive"}
	}
	if c.RetryAttempts < 1 {
		return c, &ConfigError{Field: "RetryAttempts", Reason: "must be at least 1"}
	}
	if c.MaxBudget.IsNegative() {
		return c, &ConfigError{Field: "MaxBudget", Reason: "must not be negative"}
	}
	if c.ResumeSessionID != "" && c.Store == nil {
		return c, &ConfigError{Field: "ResumeSessionID", Reason: "requires a session store"}
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}
