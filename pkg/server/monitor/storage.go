package monitor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// StorageUsage is the on-disk footprint of the service's directories.
type StorageUsage struct {
	TotalBytes int64            `json:"total_bytes"`
	Paths      map[string]int64 `json:"paths"`
	CheckedAt  time.Time        `json:"checked_at"`
}

// StorageMonitor reports disk usage of named directories with caching to
// avoid walking the dataset checkout on every request.
type StorageMonitor struct {
	paths         map[string]string
	cached        StorageUsage
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewStorageMonitor creates a storage monitor for the given name -> path
// pairs.
func NewStorageMonitor(paths map[string]string, cacheDuration time.Duration) *StorageMonitor {
	return &StorageMonitor{
		paths:         paths,
		cacheDuration: cacheDuration,
	}
}

// Usage returns current usage (cached). A directory that does not exist yet,
// such as the dataset checkout before its first clone, counts as zero.
func (sm *StorageMonitor) Usage() (StorageUsage, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.lastCheck.IsZero() && time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cached, nil
	}

	names := make([]string, 0, len(sm.paths))
	for name := range sm.paths {
		names = append(names, name)
	}
	sort.Strings(names)

	usage := StorageUsage{Paths: make(map[string]int64, len(names))}
	for _, name := range names {
		size, err := dirSize(sm.paths[name])
		if err != nil {
			return StorageUsage{}, err
		}
		usage.Paths[name] = size
		usage.TotalBytes += size
	}
	usage.CheckedAt = time.Now()

	sm.cached = usage
	sm.lastCheck = usage.CheckedAt
	return usage, nil
}

func dirSize(root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, os.ErrNotExist) {
			// Removed mid-walk, e.g. by a badger compaction.
			return nil
		}
		if err != nil {
			return err
		}
		size += diskUsage(path, info)
		return nil
	})
	return size, err
}
