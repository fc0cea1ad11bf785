// Package checkpoint tracks workspace file mutations made during a session
// so they can be rolled back. The Write builtin records each file's original
// content before the first modification; Rewind restores everything.
package checkpoint

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// FileChange holds a file's state before the session first touched it.
type FileChange struct {
	Path            string
	OriginalContent []byte
	OriginalExists  bool
}

// Tracker records file changes for rewind. Only the first change per path is
// kept, so Rewind always restores the pre-session state. Safe for concurrent
// use; parallel tool calls may record interleaved.
type Tracker struct {
	mu      sync.RWMutex
	changes map[string]*FileChange
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{changes: make(map[string]*FileChange)}
}

// RecordWrite captures a file's original content before it is written. Calls
// after the first for the same path are no-ops.
func (t *Tracker) RecordWrite(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.changes[path]; exists {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.changes[path] = &FileChange{Path: path, OriginalExists: false}
			return nil
		}
		return fmt.Errorf("checkpoint: cannot read %s: %w", path, err)
	}
	t.changes[path] = &FileChange{Path: path, OriginalContent: data, OriginalExists: true}
	return nil
}

// Rewind restores every tracked file: modified files get their original
// content back, newly created files are removed. The tracker is cleared on
// full success and keeps its record otherwise.
func (t *Tracker) Rewind() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for path, change := range t.changes {
		var err error
		if !change.OriginalExists {
			err = os.Remove(path)
			if os.IsNotExist(err) {
				err = nil
			}
		} else {
			err = os.WriteFile(path, change.OriginalContent, 0o644)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("checkpoint: rewind %s: %w", path, err)
		}
	}
	if firstErr != nil {
		return firstErr
	}
	t.changes = make(map[string]*FileChange)
	return nil
}

// Paths returns the tracked file paths, sorted.
func (t *Tracker) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.changes))
	for p := range t.changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns how many files are tracked.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.changes)
}

// Reset drops all tracked changes without restoring anything.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes = make(map[string]*FileChange)
}
