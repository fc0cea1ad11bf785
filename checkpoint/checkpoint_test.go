package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RewindRestoresModifiedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	tr := NewTracker()
	require.NoError(t, tr.RecordWrite(path))
	require.NoError(t, os.WriteFile(path, []byte("modified"), 0o644))

	require.NoError(t, tr.Rewind())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	assert.Zero(t, tr.Len(), "tracker clears on successful rewind")
}

func TestTracker_RewindRemovesCreatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")

	tr := NewTracker()
	require.NoError(t, tr.RecordWrite(path))
	require.NoError(t, os.WriteFile(path, []byte("fresh"), 0o644))

	require.NoError(t, tr.Rewind())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "created file must be removed")
}

func TestTracker_FirstChangeWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	tr := NewTracker()
	require.NoError(t, tr.RecordWrite(path))
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	// A second record for the same path must not overwrite the original.
	require.NoError(t, tr.RecordWrite(path))
	require.NoError(t, os.WriteFile(path, []byte("v3"), 0o644))
	assert.Equal(t, 1, tr.Len())

	require.NoError(t, tr.Rewind())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestTracker_PathsSorted(t *testing.T) {
	dir := t.TempDir()
	b := filepath.Join(dir, "b.txt")
	a := filepath.Join(dir, "a.txt")

	tr := NewTracker()
	require.NoError(t, tr.RecordWrite(b))
	require.NoError(t, tr.RecordWrite(a))

	assert.Equal(t, []string{a, b}, tr.Paths())
}

func TestTracker_ResetDropsWithoutRestoring(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	tr := NewTracker()
	require.NoError(t, tr.RecordWrite(path))
	require.NoError(t, os.WriteFile(path, []byte("modified"), 0o644))

	tr.Reset()
	assert.Zero(t, tr.Len())

	// Nothing to restore after reset.
	require.NoError(t, tr.Rewind())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "modified", string(data))
}
