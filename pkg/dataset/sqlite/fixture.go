package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/eplot/eprec/pkg/dataset"
)

// WriteFile creates (or extends) a snapshot file at path holding the given
// rows. It is used to build fixtures for tests and local development.
func WriteFile(path string, series []dataset.SeriesRecord, episodes []dataset.EpisodeRecord) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, r := range series {
		if _, err = tx.Exec(
			"INSERT INTO series_data (id, series_name, series_year, series_month) VALUES (?, ?, ?, ?)",
			r.ID, r.Name, r.Year, r.Month,
		); err != nil {
			return fmt.Errorf("insert series %d: %w", r.ID, err)
		}
	}
	for _, r := range episodes {
		if _, err = tx.Exec(
			"INSERT INTO ep_data (ep_name, ep_year, ep_month, ep_num, abstract, series_id) VALUES (?, ?, ?, ?, ?, ?)",
			r.Name, r.Year, r.Month, r.Num, r.Abstract, r.SeriesID,
		); err != nil {
			return fmt.Errorf("insert episode %q: %w", r.Name, err)
		}
	}

	return tx.Commit()
}
