// Package tools provides the builtin tool set: Bash, Read, Write, Glob,
// Grep and WebFetch. Builtins register with their true policy class so the
// runtime's sandbox and approval gating can tell reads from writes from
// command execution.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	agentcore "github.com/arcline/agentcore"
	"github.com/arcline/agentcore/checkpoint"
	"github.com/arcline/agentcore/internal/schema"
	"github.com/arcline/agentcore/policy"
)

const maxOutputBytes = 256_000

// Config scopes the builtin tools.
type Config struct {
	// Workdir anchors relative paths and bounds Write. Empty means the
	// process working directory.
	Workdir string

	// Checkpoint, when set, records each file's original content before
	// Write touches it so the session's mutations can be rolled back.
	Checkpoint *checkpoint.Tracker
}

// Builtins returns an agent option that installs the builtin tool set.
func Builtins(cfg Config) agentcore.Option {
	return agentcore.WithTools(func(r *agentcore.Registry) error {
		return RegisterAll(r, cfg)
	})
}

// RegisterAll registers every builtin tool into the registry.
func RegisterAll(r *agentcore.Registry, cfg Config) error {
	workdir := cfg.Workdir
	if workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("tools: resolve workdir: %w", err)
		}
		workdir = wd
	}
	abs, err := filepath.Abs(workdir)
	if err != nil {
		return fmt.Errorf("tools: resolve workdir: %w", err)
	}
	kit := &toolkit{workdir: abs, tracker: cfg.Checkpoint}

	if err := registerBuiltin(r, "Bash", "Execute a shell command in a pseudo-terminal", policy.ClassExec, kit.bash); err != nil {
		return err
	}
	if err := registerBuiltin(r, "Read", "Read a file from the local filesystem", policy.ClassRead, kit.read); err != nil {
		return err
	}
	if err := registerBuiltin(r, "Write", "Write content to a file inside the working directory", policy.ClassWrite, kit.write); err != nil {
		return err
	}
	if err := registerBuiltin(r, "Glob", "Fast file pattern matching tool", policy.ClassRead, kit.glob); err != nil {
		return err
	}
	if err := registerBuiltin(r, "Grep", "Search file contents using regex patterns", policy.ClassRead, kit.grep); err != nil {
		return err
	}
	return registerBuiltin(r, "WebFetch", "Fetch content from a URL", policy.ClassRead, kit.webFetch)
}

// toolkit carries shared state for the builtin handlers.
type toolkit struct {
	workdir string
	tracker *checkpoint.Tracker
}

// resolvePath anchors relative paths at the working directory.
func (k *toolkit) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(k.workdir, path)
}

// insideWorkdir reports whether an already-resolved path is contained in the
// working directory.
func (k *toolkit) insideWorkdir(resolved string) bool {
	rel, err := filepath.Rel(k.workdir, resolved)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

// registerBuiltin derives the input schema from T and registers the handler
// with its policy class.
func registerBuiltin[T any](r *agentcore.Registry, name, description string, class policy.ToolClass, fn func(ctx context.Context, input T) (*agentcore.ToolResult, error)) error {
	raw, err := schema.Generate[T]()
	if err != nil {
		return fmt.Errorf("tools: %s schema: %w", name, err)
	}
	spec := agentcore.ToolSpec{
		Name:        name,
		Description: description,
		InputSchema: raw,
		Kind:        agentcore.ToolBuiltin,
		Class:       class,
	}
	handler := agentcore.HandlerFunc(func(ctx context.Context, args json.RawMessage) (*agentcore.ToolResult, error) {
		var input T
		if len(args) > 0 {
			if err := json.Unmarshal(args, &input); err != nil {
				return agentcore.FailureResult(fmt.Sprintf("invalid input: %s", err.Error())), nil
			}
		}
		return fn(ctx, input)
	})
	return r.Register(spec, handler)
}

// truncate caps tool output at maxOutputBytes.
func truncate(s string) string {
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes] + "\n... [output truncated]"
	}
	return s
}
