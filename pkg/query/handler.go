package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/eplot/eprec/pkg/access"
	"github.com/eplot/eprec/pkg/aggregate"
	"github.com/eplot/eprec/pkg/dataset"
	"github.com/eplot/eprec/pkg/httpx"
)

// GenerationHeader carries the snapshot generation a response was built from.
const GenerationHeader = "X-Dataset-Generation"

// Handler serves the two aggregation endpoints.
type Handler struct {
	coord  *access.Coordinator
	opener dataset.Opener
	window int
}

// NewHandler creates a query handler. coord must be the same coordinator the
// refresher uses.
func NewHandler(coord *access.Coordinator, opener dataset.Opener, window int) *Handler {
	return &Handler{
		coord:  coord,
		opener: opener,
		window: window,
	}
}

// SeriesIDList is the request body for /get_content_by_series_id.
type SeriesIDList struct {
	IDList []int64 `json:"id_list"`
}

// HandleSeriesByPeriod handles /series_with_year_month.
// Any request body is ignored.
func (h *Handler) HandleSeriesByPeriod(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var view aggregate.PeriodView
	gen, err := h.read(r, func(snap dataset.Snapshot) error {
		var err error
		view, err = aggregate.SeriesByPeriod(r.Context(), snap)
		return err
	})
	if err != nil {
		h.fail(w, "series_with_year_month", err)
		return
	}

	observe("series_with_year_month", "ok", start)
	w.Header().Set(GenerationHeader, strconv.FormatUint(gen, 10))
	httpx.RespondJSON(w, http.StatusOK, view)
}

// HandleContentBySeriesID handles /get_content_by_series_id.
// An empty or missing body is the same as an empty id list.
func (h *Handler) HandleContentBySeriesID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SeriesIDList
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		observe("get_content_by_series_id", "bad_request", start)
		httpx.RespondText(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if len(req.IDList) == 0 {
		observe("get_content_by_series_id", "ok", start)
		w.Header().Set(GenerationHeader, strconv.FormatUint(h.coord.Generation(), 10))
		httpx.RespondJSON(w, http.StatusOK, aggregate.EpisodeView{})
		return
	}

	var view aggregate.EpisodeView
	gen, err := h.read(r, func(snap dataset.Snapshot) error {
		var err error
		view, err = aggregate.ContentBySeriesID(r.Context(), snap, req.IDList, h.window)
		return err
	})
	if err != nil {
		h.fail(w, "get_content_by_series_id", err)
		return
	}

	observe("get_content_by_series_id", "ok", start)
	w.Header().Set(GenerationHeader, strconv.FormatUint(gen, 10))
	httpx.RespondJSON(w, http.StatusOK, view)
}

// read holds a read ticket for the whole open-scan-aggregate sequence and
// releases it before the response is written.
func (h *Handler) read(r *http.Request, fn func(dataset.Snapshot) error) (uint64, error) {
	var generation uint64
	err := h.coord.Read(r.Context(), func(gen uint64) error {
		generation = gen
		snap, err := h.opener.Open(r.Context())
		if err != nil {
			return err
		}
		defer snap.Close()
		return fn(snap)
	})
	return generation, err
}

func (h *Handler) fail(w http.ResponseWriter, endpoint string, err error) {
	log.Printf("%s failed: %v", endpoint, err)

	switch {
	case errors.Is(err, dataset.ErrOpen):
		observe(endpoint, "open_error", time.Time{})
		httpx.RespondText(w, http.StatusInternalServerError, "DB open error")
	case errors.Is(err, dataset.ErrQuery):
		observe(endpoint, "query_error", time.Time{})
		httpx.RespondText(w, http.StatusInternalServerError, "DB query error")
	default:
		// Gate wait abandoned because the client went away.
		observe(endpoint, "cancelled", time.Time{})
		httpx.RespondText(w, http.StatusInternalServerError, "request cancelled")
	}
}
