package aggregate

import (
	"context"
	"sort"

	"github.com/eplot/eprec/pkg/dataset"
)

// EpisodeView maps an episode name to its newest abstracts.
type EpisodeView map[string][]string

// newer reports whether a sorts before b in newest-first order.
// Components are compared as strings, so month "9" is newer than "10".
func newer(a, b dataset.EpisodeRecord) bool {
	if a.Year != b.Year {
		return a.Year > b.Year
	}
	if a.Month != b.Month {
		return a.Month > b.Month
	}
	return a.Num > b.Num
}

// TopByEpisode groups rows by episode name, orders each group newest first
// and keeps at most window abstracts per group. Ties keep scan order.
func TopByEpisode(rows []dataset.EpisodeRecord, window int) EpisodeView {
	groups := make(map[string][]dataset.EpisodeRecord)
	for _, r := range rows {
		groups[r.Name] = append(groups[r.Name], r)
	}

	view := make(EpisodeView, len(groups))
	for name, items := range groups {
		sort.SliceStable(items, func(i, j int) bool {
			return newer(items[i], items[j])
		})
		if window >= 0 && len(items) > window {
			items = items[:window]
		}
		abstracts := make([]string, len(items))
		for i, it := range items {
			abstracts[i] = it.Abstract
		}
		view[name] = abstracts
	}
	return view
}

// ContentBySeriesID returns the newest abstracts per episode name for the
// given series. An empty id list returns an empty view without touching snap.
func ContentBySeriesID(ctx context.Context, snap dataset.Snapshot, ids []int64, window int) (EpisodeView, error) {
	if len(ids) == 0 {
		return EpisodeView{}, nil
	}
	rows, err := snap.Episodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	return TopByEpisode(rows, window), nil
}
