package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	agentcore "github.com/arcline/agentcore"
)

// WriteInput defines the input for the Write tool.
type WriteInput struct {
	FilePath string `json:"file_path" jsonschema:"required,description=The path to the file to write"`
	Content  string `json:"content" jsonschema:"required,description=The content to write to the file"`
}

func (k *toolkit) write(_ context.Context, input WriteInput) (*agentcore.ToolResult, error) {
	if input.FilePath == "" {
		return agentcore.FailureResult("file_path is required"), nil
	}

	resolved := k.resolvePath(input.FilePath)
	if !k.insideWorkdir(resolved) {
		return agentcore.FailureResult(fmt.Sprintf("path %s is outside the working directory", input.FilePath)), nil
	}

	if k.tracker != nil {
		if err := k.tracker.RecordWrite(resolved); err != nil {
			return agentcore.FailureResult(err.Error()), nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return agentcore.FailureResult(fmt.Sprintf("failed to create directory: %s", err.Error())), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return agentcore.FailureResult(fmt.Sprintf("failed to write file: %s", err.Error())), nil
	}
	return agentcore.SuccessResult(fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), resolved)), nil
}
