package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/eplot/eprec/pkg/dataset"
)

// Store holds dataset rows in memory. Useful for testing and development.
//
// Snapshots read the live rows rather than a copy, so an unguarded
// row-by-row update is visible to a concurrent reader halfway through,
// the same way a file rewritten in place would be.
type Store struct {
	mu       sync.RWMutex
	series   []dataset.SeriesRecord
	episodes []dataset.EpisodeRecord
	openErr  error
	queryErr error
	opens    int
}

// New creates an in-memory dataset backend
func New(series []dataset.SeriesRecord, episodes []dataset.EpisodeRecord) *Store {
	return &Store{
		series:   append([]dataset.SeriesRecord(nil), series...),
		episodes: append([]dataset.EpisodeRecord(nil), episodes...),
	}
}

// Open implements dataset.Opener
func (s *Store) Open(ctx context.Context) (dataset.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openErr != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrOpen, s.openErr)
	}
	return &snapshot{store: s}, nil
}

// Opens reports how many times Open was called.
func (s *Store) Opens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opens
}

// FailOpen makes subsequent opens fail with err (nil clears it).
func (s *Store) FailOpen(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// FailQuery makes subsequent scans fail with err (nil clears it).
func (s *Store) FailQuery(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErr = err
}

// SetSeries overwrites a single series row.
func (s *Store) SetSeries(i int, r dataset.SeriesRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[i] = r
}

// SeriesCount returns the number of series rows.
func (s *Store) SeriesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

type snapshot struct {
	store *Store
}

func (sn *snapshot) Series(ctx context.Context) ([]dataset.SeriesRecord, error) {
	s := sn.store
	s.mu.RLock()
	if s.queryErr != nil {
		err := s.queryErr
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %w", dataset.ErrQuery, err)
	}
	n := len(s.series)
	s.mu.RUnlock()

	// Row at a time, like a cursor.
	out := make([]dataset.SeriesRecord, 0, n)
	for i := 0; i < n; i++ {
		s.mu.RLock()
		out = append(out, s.series[i])
		s.mu.RUnlock()
	}
	return out, nil
}

func (sn *snapshot) Episodes(ctx context.Context, ids []int64) ([]dataset.EpisodeRecord, error) {
	s := sn.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.queryErr != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrQuery, s.queryErr)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var out []dataset.EpisodeRecord
	for _, r := range s.episodes {
		if want[r.SeriesID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (sn *snapshot) Close() error { return nil }
