package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arcline/agentcore/internal/schema"
	"github.com/arcline/agentcore/policy"
)

// ToolKind distinguishes where a tool's implementation lives.
type ToolKind int

const (
	// ToolBuiltin is shipped with the runtime (bash, file operations, web).
	ToolBuiltin ToolKind = iota
	// ToolCustom is an externally supplied handler.
	ToolCustom
	// ToolMCP is resolved through a remote MCP server.
	ToolMCP
)

func (k ToolKind) String() string {
	switch k {
	case ToolBuiltin:
		return "builtin"
	case ToolCustom:
		return "custom"
	case ToolMCP:
		return "mcp"
	default:
		return "unknown"
	}
}

// ToolSpec describes a registered tool. Name is unique within a registry.
type ToolSpec struct {
	Name        string
	Description string

	// InputSchema is the JSON schema the tool's arguments are validated
	// against before execution.
	InputSchema json.RawMessage

	Kind  ToolKind
	Class policy.ToolClass
}

// ToolCall is a structured request emitted by the model to invoke a named
// tool. Each call is answered by exactly one ToolResult.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResult is the outcome of one tool call: either a success payload or a
// failure description. Failures are data, not errors — a failed call never
// aborts the session.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// SuccessResult builds a successful tool result.
func SuccessResult(content string) *ToolResult {
	return &ToolResult{Content: content}
}

// FailureResult builds a failed tool result carrying a description.
func FailureResult(content string) *ToolResult {
	return &ToolResult{Content: content, IsError: true}
}

// Handler is the capability interface every tool variant implements.
// Handlers must observe ctx cancellation at their next safe checkpoint and
// return promptly; the dispatcher records an overdue handler as cancelled
// after the stop grace timeout but never force-terminates it.
type Handler interface {
	Invoke(ctx context.Context, args json.RawMessage) (*ToolResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (*ToolResult, error)

func (f HandlerFunc) Invoke(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	return f(ctx, args)
}

// Tool is the generic interface for typed custom tools. The type parameter T
// defines the input struct deserialized from the model's JSON arguments; its
// JSON schema is derived from struct tags at registration.
type Tool[T any] interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input T) (*ToolResult, error)
}

// toolEntry is the type-erased registration record.
type toolEntry struct {
	spec      ToolSpec
	handler   Handler
	validator *schema.Validator // nil when the spec carries no schema
}

// Registry holds the session's tool set keyed by name. Registration happens
// at configuration time (builtins, custom tools, then MCP discovery during
// session setup); there is no dynamic registration mid-session.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*toolEntry
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*toolEntry)}
}

// Register adds a tool. A name collision returns ErrDuplicateTool; nothing
// is overridden. An invalid input schema is rejected immediately rather than
// at first dispatch.
func (r *Registry) Register(spec ToolSpec, h Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("agentcore: tool name is empty")
	}
	if h == nil {
		return fmt.Errorf("agentcore: tool %q has no handler", spec.Name)
	}

	var v *schema.Validator
	if len(spec.InputSchema) > 0 {
		var err error
		v, err = schema.Compile(spec.Name, spec.InputSchema)
		if err != nil {
			return fmt.Errorf("agentcore: tool %q schema: %w", spec.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
	}
	r.entries[spec.Name] = &toolEntry{spec: spec, handler: h, validator: v}
	r.order = append(r.order, spec.Name)
	return nil
}

// RegisterTool registers a typed custom tool, deriving its input schema from
// the struct type T.
func RegisterTool[T any](r *Registry, tool Tool[T]) error {
	raw, err := schema.Generate[T]()
	if err != nil {
		return fmt.Errorf("agentcore: tool %q schema: %w", tool.Name(), err)
	}

	spec := ToolSpec{
		Name:        tool.Name(),
		Description: tool.Description(),
		InputSchema: raw,
		Kind:        ToolCustom,
		Class:       policy.ClassWrite,
	}
	h := HandlerFunc(func(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
		var input T
		if len(args) > 0 {
			if err := json.Unmarshal(args, &input); err != nil {
				return FailureResult(fmt.Sprintf("invalid input: %s", err.Error())), nil
			}
		}
		return tool.Execute(ctx, input)
	})
	return r.Register(spec, h)
}

// Resolve returns the spec and handler for a tool name.
func (r *Registry) Resolve(name string) (ToolSpec, Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return ToolSpec{}, nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return e.spec, e.handler, nil
}

// Validate checks raw arguments against the tool's input schema. Tools
// registered without a schema accept any payload.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if e.validator == nil {
		return nil
	}
	return e.validator.Validate(args)
}

// Specs returns all registered tool specs in registration order.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.entries[name].spec)
	}
	return specs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
