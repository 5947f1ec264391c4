package aggregate

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/eplot/eprec/pkg/dataset"
)

// SeriesItem is one entry of a period bucket.
type SeriesItem struct {
	ID         int64  `json:"id"`
	SeriesName string `json:"series_name"`
}

// PeriodView maps a YYYYMM key to the series released in that month.
// encoding/json writes map keys sorted, which orders periods correctly
// because the month is zero-padded.
type PeriodView map[string][]SeriesItem

// PeriodKey builds the grouping key: year followed by month left-padded with
// zeros to two characters. Inputs are not validated.
func PeriodKey(year, month string) string {
	if n := utf8.RuneCountInString(month); n < 2 {
		month = strings.Repeat("0", 2-n) + month
	}
	return year + month
}

// GroupByPeriod buckets series by PeriodKey and sorts every bucket by name.
// Equal names keep scan order.
func GroupByPeriod(rows []dataset.SeriesRecord) PeriodView {
	view := make(PeriodView)
	for _, r := range rows {
		key := PeriodKey(r.Year, r.Month)
		view[key] = append(view[key], SeriesItem{ID: r.ID, SeriesName: r.Name})
	}
	for _, items := range view {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].SeriesName < items[j].SeriesName
		})
	}
	return view
}

// SeriesByPeriod scans every series in snap and groups them by period.
func SeriesByPeriod(ctx context.Context, snap dataset.Snapshot) (PeriodView, error) {
	rows, err := snap.Series(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByPeriod(rows), nil
}
