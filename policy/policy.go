// Package policy decides whether a tool call may execute. A Gate combines
// declarative rules, a sandbox policy (where a tool may act) and an approval
// mode (whether confirmation is required before it acts). Calls that require
// confirmation are suspended through a Broker until an external decision
// arrives.
package policy

import "encoding/json"

// ToolClass categorizes what a tool does, independent of its implementation.
// The gate uses the class to apply sandbox and approval constraints.
type ToolClass int

const (
	// ClassRead covers read-only tools: file reads, searches, web fetches.
	ClassRead ToolClass = iota
	// ClassWrite covers tools that mutate files or external state.
	ClassWrite
	// ClassExec covers tools that run arbitrary commands.
	ClassExec
)

func (c ToolClass) String() string {
	switch c {
	case ClassRead:
		return "read"
	case ClassWrite:
		return "write"
	case ClassExec:
		return "exec"
	default:
		return "unknown"
	}
}

// SandboxPolicy constrains where a tool may act.
type SandboxPolicy int

const (
	// SandboxWorkspaceWrite permits reads anywhere and writes inside the
	// configured working directory. The default.
	SandboxWorkspaceWrite SandboxPolicy = iota
	// SandboxReadOnly denies all mutating and exec tools.
	SandboxReadOnly
	// SandboxFullAccess lifts all sandbox restrictions.
	SandboxFullAccess
)

func (p SandboxPolicy) String() string {
	switch p {
	case SandboxWorkspaceWrite:
		return "workspace-write"
	case SandboxReadOnly:
		return "read-only"
	case SandboxFullAccess:
		return "full-access"
	default:
		return "unknown"
	}
}

// ApprovalMode constrains whether external confirmation is required before a
// tool executes.
type ApprovalMode int

const (
	// ApproveNever runs fully autonomously; nothing asks for confirmation.
	ApproveNever ApprovalMode = iota
	// ApproveOnRequest asks for exec-class tools only.
	ApproveOnRequest
	// ApproveAlways asks for everything except read-class tools.
	ApproveAlways
)

func (m ApprovalMode) String() string {
	switch m {
	case ApproveNever:
		return "never"
	case ApproveOnRequest:
		return "on-request"
	case ApproveAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of a gate check.
type Verdict int

const (
	Allow Verdict = iota
	Deny
	Ask
)

// Decision is the gate's answer for one tool call. A Deny carries the
// reason; an Ask must be resolved through the Broker before execution.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// Gate evaluates tool calls against the configured policies. It is immutable
// after construction and safe for concurrent use.
type Gate struct {
	sandbox  SandboxPolicy
	approval ApprovalMode
	rules    []Rule
}

// NewGate builds a gate from a sandbox policy, approval mode and optional
// declarative rules. Rules take precedence over the mode-based defaults.
func NewGate(sandbox SandboxPolicy, approval ApprovalMode, rules ...Rule) *Gate {
	return &Gate{sandbox: sandbox, approval: approval, rules: rules}
}

// Sandbox returns the gate's sandbox policy.
func (g *Gate) Sandbox() SandboxPolicy { return g.sandbox }

// Approval returns the gate's approval mode.
func (g *Gate) Approval() ApprovalMode { return g.approval }

// Authorize decides whether the named tool call may execute. Rules are
// checked first; then the sandbox policy, then the approval mode. The args
// payload is available to rules but not otherwise inspected.
func (g *Gate) Authorize(name string, class ToolClass, args json.RawMessage) Decision {
	_ = args

	if verdict, matched := MatchRules(g.rules, name); matched {
		switch verdict {
		case Deny:
			return Decision{Verdict: Deny, Reason: "denied by rule"}
		case Allow:
			return Decision{Verdict: Allow}
		case Ask:
			return Decision{Verdict: Ask}
		}
	}

	if g.sandbox == SandboxReadOnly && class != ClassRead {
		return Decision{Verdict: Deny, Reason: "sandbox is read-only"}
	}

	switch g.approval {
	case ApproveAlways:
		if class != ClassRead {
			return Decision{Verdict: Ask}
		}
	case ApproveOnRequest:
		if class == ClassExec {
			return Decision{Verdict: Ask}
		}
	}
	return Decision{Verdict: Allow}
}
