package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/creack/pty"

	agentcore "github.com/arcline/agentcore"
)

// BashInput defines the input for the Bash tool.
type BashInput struct {
	Command string `json:"command" jsonschema:"required,description=The shell command to execute"`
}

// bash runs the command under a pseudo-terminal so interactive-minded
// programs behave the way they do in a real shell. Cancellation kills the
// process through the command context.
func (k *toolkit) bash(ctx context.Context, input BashInput) (*agentcore.ToolResult, error) {
	if strings.TrimSpace(input.Command) == "" {
		return agentcore.FailureResult("command is required"), nil
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", input.Command)
	cmd.Dir = k.workdir

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return agentcore.FailureResult(fmt.Sprintf("failed to start command: %s", err.Error())), nil
	}
	defer ptmx.Close()

	var out strings.Builder
	buf := make([]byte, 4096)
	for out.Len() <= maxOutputBytes {
		n, err := ptmx.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			// The pty returns EIO once the child exits; treat it like EOF.
			if errors.Is(err, io.EOF) {
				break
			}
			break
		}
	}

	waitErr := cmd.Wait()
	text := truncate(out.String())

	if ctx.Err() != nil {
		return agentcore.FailureResult(fmt.Sprintf("command cancelled:\n%s", text)), nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return agentcore.FailureResult(fmt.Sprintf("exit status %d:\n%s", exitErr.ExitCode(), text)), nil
		}
		return agentcore.FailureResult(fmt.Sprintf("command failed: %s\n%s", waitErr.Error(), text)), nil
	}
	if text == "" {
		text = "(no output)"
	}
	return agentcore.SuccessResult(text), nil
}
