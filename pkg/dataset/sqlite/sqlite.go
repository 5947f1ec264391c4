package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/eplot/eprec/pkg/dataset"
)

// Schema creates the two tables the service reads. The service itself never
// runs it; it exists for fixtures and local seeding.
const Schema = `
CREATE TABLE IF NOT EXISTS series_data (
	id           INTEGER PRIMARY KEY,
	series_name  TEXT NOT NULL,
	series_year  TEXT NOT NULL,
	series_month TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ep_data (
	ep_name   TEXT NOT NULL,
	ep_year   TEXT NOT NULL,
	ep_month  TEXT NOT NULL,
	ep_num    TEXT NOT NULL,
	abstract  TEXT NOT NULL,
	series_id INTEGER NOT NULL
);
`

// Opener opens the snapshot file read-only on every call.
type Opener struct {
	path string
}

// NewOpener returns an opener for the snapshot at path.
// The file does not need to exist yet.
func NewOpener(path string) *Opener {
	return &Opener{path: path}
}

// Path returns the snapshot file path.
func (o *Opener) Path() string { return o.path }

// Open connects to the snapshot. A missing file is an error rather than an
// empty database.
func (o *Opener) Open(ctx context.Context) (dataset.Snapshot, error) {
	if _, err := os.Stat(o.path); err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrOpen, err)
	}

	dsn, err := readOnlyDSN(o.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrOpen, err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrOpen, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", dataset.ErrOpen, err)
	}
	return &Snapshot{db: db}, nil
}

// Snapshot is a read-only connection to one snapshot file.
type Snapshot struct {
	db *sql.DB
}

// Series scans series_data in table order.
func (s *Snapshot) Series(ctx context.Context) ([]dataset.SeriesRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, series_name, series_year, series_month FROM series_data")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrQuery, err)
	}
	defer rows.Close()

	var out []dataset.SeriesRecord
	for rows.Next() {
		var (
			r                 dataset.SeriesRecord
			name, year, month sql.NullString
		)
		if err := rows.Scan(&r.ID, &name, &year, &month); err != nil {
			return nil, fmt.Errorf("%w: %w", dataset.ErrQuery, err)
		}
		// NULL text reads as "".
		r.Name, r.Year, r.Month = name.String, year.String, month.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrQuery, err)
	}
	return out, nil
}

// Episodes scans ep_data for the given series ids. Duplicate ids are bound
// once; an empty list returns nothing without querying.
func (s *Snapshot) Episodes(ctx context.Context, ids []int64) ([]dataset.EpisodeRecord, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		"SELECT ep_name, ep_year, ep_month, ep_num, abstract, series_id FROM ep_data "+
			"WHERE series_id IN (%s) ORDER BY ep_name, ep_year, ep_month, ep_num DESC",
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrQuery, err)
	}
	defer rows.Close()

	var out []dataset.EpisodeRecord
	for rows.Next() {
		var (
			r                                dataset.EpisodeRecord
			name, year, month, num, abstract sql.NullString
		)
		if err := rows.Scan(&name, &year, &month, &num, &abstract, &r.SeriesID); err != nil {
			return nil, fmt.Errorf("%w: %w", dataset.ErrQuery, err)
		}
		r.Name, r.Year, r.Month = name.String, year.String, month.String
		r.Num, r.Abstract = num.String, abstract.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrQuery, err)
	}
	return out, nil
}

// Close closes the underlying connection pool.
func (s *Snapshot) Close() error {
	return s.db.Close()
}

// readOnlyDSN builds a file: URI for path. Characters such as '?' and '#'
// in the path are escaped so they cannot end the path early.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: "mode=ro"}
	return u.String(), nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
