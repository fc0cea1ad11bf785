package tools

import (
	"context"
	"fmt"
	"os/exec"

	agentcore "github.com/arcline/agentcore"
)

// GrepInput defines the input for the Grep tool.
type GrepInput struct {
	Pattern         string `json:"pattern" jsonschema:"required,description=The regex pattern to search for"`
	Path            string `json:"path,omitempty" jsonschema:"description=File or directory to search in"`
	OutputMode      string `json:"output_mode,omitempty" jsonschema:"description=Output mode: content or files_with_matches or count"`
	Glob            string `json:"glob,omitempty" jsonschema:"description=Glob pattern to filter files"`
	Context         *int   `json:"context,omitempty" jsonschema:"description=Lines of context around matches"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty" jsonschema:"description=Case insensitive search"`
}

func (k *toolkit) grep(ctx context.Context, input GrepInput) (*agentcore.ToolResult, error) {
	if input.Pattern == "" {
		return agentcore.FailureResult("pattern is required"), nil
	}

	rgPath, err := exec.LookPath("rg")
	if err != nil {
		return agentcore.FailureResult("ripgrep (rg) is not installed"), nil
	}

	cmd := exec.CommandContext(ctx, rgPath, buildRgArgs(input)...)
	cmd.Dir = k.workdir

	output, err := cmd.CombinedOutput()
	text := string(output)
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// rg exits 1 on no matches, 2 on error.
			if exitErr.ExitCode() == 1 {
				return agentcore.SuccessResult("No matches found."), nil
			}
			return agentcore.FailureResult(fmt.Sprintf("rg error: %s", text)), nil
		}
		return agentcore.FailureResult(fmt.Sprintf("failed to run rg: %s", err.Error())), nil
	}
	return agentcore.SuccessResult(truncate(text)), nil
}

func buildRgArgs(input GrepInput) []string {
	var args []string

	switch input.OutputMode {
	case "content":
		args = append(args, "-n")
	case "count":
		args = append(args, "-c")
	case "files_with_matches", "":
		args = append(args, "-l")
	}
	if input.CaseInsensitive {
		args = append(args, "-i")
	}
	if input.Glob != "" {
		args = append(args, "--glob", input.Glob)
	}
	if input.Context != nil && *input.Context > 0 {
		args = append(args, "-C", fmt.Sprintf("%d", *input.Context))
	}

	args = append(args, input.Pattern)
	if input.Path != "" {
		args = append(args, input.Path)
	}
	return args
}
