package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	agentcore "github.com/arcline/agentcore"
)

const (
	defaultReadLimit   = 2000
	maxLineLength      = 2000
	truncationSuffix   = "... [truncated]"
	lineNumberTabWidth = 6
)

// ReadInput defines the input for the Read tool.
type ReadInput struct {
	FilePath string `json:"file_path" jsonschema:"required,description=The path to the file to read"`
	Offset   *int   `json:"offset,omitempty" jsonschema:"description=The line number to start reading from (1-based)"`
	Limit    *int   `json:"limit,omitempty" jsonschema:"description=The number of lines to read"`
}

func (k *toolkit) read(_ context.Context, input ReadInput) (*agentcore.ToolResult, error) {
	if input.FilePath == "" {
		return agentcore.FailureResult("file_path is required"), nil
	}

	f, err := os.Open(k.resolvePath(input.FilePath))
	if err != nil {
		return agentcore.FailureResult(fmt.Sprintf("failed to open file: %s", err.Error())), nil
	}
	defer f.Close()

	limit := defaultReadLimit
	if input.Limit != nil && *input.Limit > 0 {
		limit = *input.Limit
	}
	offset := 1
	if input.Offset != nil && *input.Offset > 0 {
		offset = *input.Offset
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var b strings.Builder
	lineNum := 0
	linesOutput := 0
	for scanner.Scan() {
		lineNum++
		if lineNum < offset {
			continue
		}
		if linesOutput >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > maxLineLength {
			line = line[:maxLineLength-len(truncationSuffix)] + truncationSuffix
		}
		fmt.Fprintf(&b, "%*d\t%s\n", lineNumberTabWidth, lineNum, line)
		linesOutput++
	}
	if err := scanner.Err(); err != nil {
		return agentcore.FailureResult(fmt.Sprintf("error reading file: %s", err.Error())), nil
	}
	if b.Len() == 0 {
		return agentcore.SuccessResult("(empty file)"), nil
	}
	return agentcore.SuccessResult(b.String()), nil
}
