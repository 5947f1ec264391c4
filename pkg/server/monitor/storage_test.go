package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageMonitor_Usage(t *testing.T) {
	repo := t.TempDir()
	journal := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "data.db"), []byte("sqlite bytes"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(journal, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(journal, "sub", "000001.vlog"), []byte("vlog"), 0644))

	sm := NewStorageMonitor(map[string]string{"dataset": repo, "journal": journal}, time.Minute)
	usage, err := sm.Usage()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, usage.Paths["dataset"], int64(len("sqlite bytes")))
	assert.GreaterOrEqual(t, usage.Paths["journal"], int64(len("vlog")))
	assert.Equal(t, usage.Paths["dataset"]+usage.Paths["journal"], usage.TotalBytes)
}

func TestStorageMonitor_MissingDirIsZero(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "eplot-data-compiler")
	sm := NewStorageMonitor(map[string]string{"dataset": missing}, time.Minute)

	usage, err := sm.Usage()
	require.NoError(t, err)
	assert.Zero(t, usage.TotalBytes)
	assert.Contains(t, usage.Paths, "dataset")
}

func TestStorageMonitor_Caching(t *testing.T) {
	dir := t.TempDir()
	sm := NewStorageMonitor(map[string]string{"dataset": dir}, time.Hour)

	first, err := sm.Usage()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.db"), make([]byte, 64*1024), 0644))

	second, err := sm.Usage()
	require.NoError(t, err)
	assert.Equal(t, first, second, "cached value should be returned within the cache window")
}

func TestStorageMonitor_NoCache(t *testing.T) {
	dir := t.TempDir()
	sm := NewStorageMonitor(map[string]string{"dataset": dir}, 0)

	first, err := sm.Usage()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.db"), make([]byte, 64*1024), 0644))

	second, err := sm.Usage()
	require.NoError(t, err)
	assert.Greater(t, second.TotalBytes, first.TotalBytes)
}
