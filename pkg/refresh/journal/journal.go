package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/eplot/eprec/pkg/refresh"
)

// keyLen is 8 bytes of big-endian start time followed by 8 bytes of
// outcome hash, so keys sort by start time and same-instant cycles don't
// overwrite each other.
const keyLen = 16

// Journal keeps the history of refresh outcomes in BadgerDB.
type Journal struct {
	db *badger.DB
}

// Config holds journal configuration.
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = 16 MB memtable)
	MaxMemoryMB int64
}

// New opens a journal.
func New(cfg Config) (*Journal, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	// The journal holds a few hundred small records; keep badger's memory
	// and file sizes far below its defaults.
	opts = opts.
		WithLogger(nil).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(2).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithNumCompactors(1).
		WithValueLogFileSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append stores an outcome.
func (j *Journal) Append(o refresh.Outcome) error {
	value, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	key := makeKey(o.StartedAt, value)
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// ObserveRefresh implements refresh.Observer. Journal failures are logged
// and never affect the cycle.
func (j *Journal) ObserveRefresh(o refresh.Outcome) {
	if err := j.Append(o); err != nil {
		log.Printf("Failed to journal refresh outcome: %v", err)
	}
}

// Recent returns up to limit outcomes, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]refresh.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []refresh.Outcome
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		if limit > 0 && limit < opts.PrefetchSize {
			opts.PrefetchSize = limit
		}

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(results) >= limit {
				return nil
			}
			if len(results)%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var o refresh.Outcome
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &o)
			}); err != nil {
				return fmt.Errorf("failed to decode outcome: %w", err)
			}
			results = append(results, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Prune deletes outcomes that started before the cutoff and returns how
// many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var keys [][]byte
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if !parseKey(key).Before(before) {
				// Keys are time ordered, everything after is newer.
				break
			}
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// RunGC runs one pass of value log garbage collection. It reports false
// when nothing was rewritten.
func (j *Journal) RunGC(discardRatio float64) (bool, error) {
	err := j.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close shuts down BadgerDB cleanly.
func (j *Journal) Close() error {
	return j.db.Close()
}

func makeKey(startedAt time.Time, value []byte) []byte {
	key := make([]byte, keyLen)
	binary.BigEndian.PutUint64(key[:8], uint64(startedAt.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], xxhash.Sum64(value))
	return key
}

func parseKey(key []byte) time.Time {
	if len(key) < 8 {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(key[:8])))
}
