package dataset

import (
	"context"
	"errors"
)

var (
	// ErrOpen means the snapshot file is missing or unreadable.
	ErrOpen = errors.New("dataset: open snapshot")

	// ErrQuery means a query failed against an otherwise valid snapshot.
	ErrQuery = errors.New("dataset: query")
)

// SeriesRecord is one row of series_data.
type SeriesRecord struct {
	ID    int64
	Name  string
	Year  string
	Month string
}

// EpisodeRecord is one row of ep_data.
type EpisodeRecord struct {
	Name     string
	Year     string
	Month    string
	Num      string
	Abstract string
	SeriesID int64
}

// Opener opens the current snapshot on demand.
// Implementations: sqlite (production), memory (testing)
type Opener interface {
	// Open returns a handle to the snapshot as it is right now.
	// Errors wrap ErrOpen.
	Open(ctx context.Context) (Snapshot, error)
}

// Snapshot is an open handle to one dataset snapshot.
// Errors from the scan methods wrap ErrQuery.
type Snapshot interface {
	// Series returns every series row in scan order.
	Series(ctx context.Context) ([]SeriesRecord, error)

	// Episodes returns episode rows whose series_id is in ids.
	Episodes(ctx context.Context, ids []int64) ([]EpisodeRecord, error)

	// Close releases the handle
	Close() error
}
