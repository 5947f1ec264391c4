/*
Package dataset defines the read-only view of the episode dataset.

# Snapshots

The dataset is a single SQLite file inside a git working copy. The refresher
replaces it wholesale; this package never writes to it. Every query opens a
fresh Snapshot through an Opener, scans what it needs, and closes it again,
so a handle never outlives the access ticket it was opened under:

	err := coord.Read(ctx, func(gen uint64) error {
	    snap, err := opener.Open(ctx)
	    if err != nil {
	        return err
	    }
	    defer snap.Close()

	    rows, err := snap.Series(ctx)
	    ...
	})

# Backends

  - sqlite: modernc.org/sqlite, opened read-only per request
  - memory: in-process rows for tests

# Schema

	series_data(id INTEGER, series_name TEXT, series_year TEXT, series_month TEXT)
	ep_data(ep_name TEXT, ep_year TEXT, ep_month TEXT, ep_num TEXT, abstract TEXT, series_id INTEGER)

Year, month and episode number are text columns and are compared as text.

# Errors

Open failures wrap ErrOpen; scan failures wrap ErrQuery. Callers treat both
the same way, but the distinction shows up in logs.
*/
package dataset
