package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	agentcore "github.com/arcline/agentcore"
)

// GlobInput defines the input for the Glob tool.
type GlobInput struct {
	Pattern string `json:"pattern" jsonschema:"required,description=The glob pattern to match files against"`
	Path    string `json:"path,omitempty" jsonschema:"description=The directory to search in"`
}

func (k *toolkit) glob(_ context.Context, input GlobInput) (*agentcore.ToolResult, error) {
	if input.Pattern == "" {
		return agentcore.FailureResult("pattern is required"), nil
	}

	base := k.workdir
	if input.Path != "" {
		base = k.resolvePath(input.Path)
	}

	matches, err := doublestar.Glob(os.DirFS(base), input.Pattern)
	if err != nil {
		return agentcore.FailureResult(fmt.Sprintf("glob error: %s", err.Error())), nil
	}
	if len(matches) == 0 {
		return agentcore.SuccessResult("No files matched the pattern."), nil
	}

	type fileEntry struct {
		path    string
		modTime int64
	}
	entries := make([]fileEntry, 0, len(matches))
	for _, m := range matches {
		fullPath := filepath.Join(base, m)
		info, err := os.Stat(fullPath)
		if err != nil {
			continue
		}
		entries = append(entries, fileEntry{path: fullPath, modTime: info.ModTime().UnixNano()})
	}

	// Newest first.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime > entries[j].modTime
	})

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.path)
		b.WriteByte('\n')
	}
	return agentcore.SuccessResult(truncate(b.String())), nil
}
