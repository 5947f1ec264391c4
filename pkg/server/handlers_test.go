package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eplot/eprec/pkg/access"
	"github.com/eplot/eprec/pkg/dataset"
	"github.com/eplot/eprec/pkg/dataset/memory"
	"github.com/eplot/eprec/pkg/query"
	"github.com/eplot/eprec/pkg/refresh"
	"github.com/eplot/eprec/pkg/server/monitor"
)

type stubSyncer struct {
	out refresh.Outcome
}

func (s stubSyncer) Sync(ctx context.Context, coord *access.Coordinator) refresh.Outcome {
	if s.out.Status == refresh.StatusSuccess {
		if err := coord.Replace(ctx, func() error { return nil }); err != nil {
			return refresh.Failed(refresh.StateHasLocalCopy, err.Error())
		}
	}
	return s.out
}

type stubHistory struct {
	outcomes  []refresh.Outcome
	err       error
	lastLimit int
}

func (h *stubHistory) Recent(ctx context.Context, limit int) ([]refresh.Outcome, error) {
	h.lastLimit = limit
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.outcomes) {
		return h.outcomes[:limit], nil
	}
	return h.outcomes, nil
}

func newTestRouter(t *testing.T, syncer refresh.Syncer, history History) (*mux.Router, Services) {
	t.Helper()
	coord := access.New()
	store := memory.New(
		[]dataset.SeriesRecord{{ID: 7, Name: "Frieren", Year: "2023", Month: "9"}},
		[]dataset.EpisodeRecord{{Name: "Ep", Year: "2023", Month: "09", Num: "1", Abstract: "journey", SeriesID: 7}},
	)

	scheduler := refresh.NewScheduler(syncer, coord, time.Hour)
	refreshMonitor := monitor.NewRefreshMonitor(2*time.Hour, 3)
	scheduler.Observe(refreshMonitor)

	svc := Services{
		Coordinator:    coord,
		Query:          query.NewHandler(coord, store, 3),
		Scheduler:      scheduler,
		Hub:            refresh.NewHub(),
		History:        history,
		RefreshMonitor: refreshMonitor,
		StorageMonitor: monitor.NewStorageMonitor(map[string]string{"dataset": t.TempDir()}, 0),
	}
	router := mux.NewRouter()
	SetupRoutes(router, svc, "3001")
	return router, svc
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRoutes_ReadEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, stubSyncer{out: refresh.Skipped(refresh.StateHasLocalCopy, "already up to date")}, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rr := serve(router, method, "/series_with_year_month", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"202309":[{"id":7,"series_name":"Frieren"}]}`, rr.Body.String())
		assert.Equal(t, "0", rr.Header().Get(query.GenerationHeader))

		rr = serve(router, method, "/get_content_by_series_id", `{"id_list":[7]}`)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"Ep":["journey"]}`, rr.Body.String())
	}
}

func TestRoutes_CORS(t *testing.T) {
	router, _ := newTestRouter(t, stubSyncer{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/series_with_year_month", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/series_with_year_month", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleHealth(t *testing.T) {
	router, svc := newTestRouter(t, stubSyncer{out: refresh.Success(refresh.StateNoLocalCopy, "abc")}, nil)
	svc.Scheduler.RunCycle(context.Background())

	rr := serve(router, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.Refresh.Healthy)
	assert.Equal(t, refresh.StatusSuccess, resp.Refresh.LastStatus)
}

func TestHandleHealth_Degraded(t *testing.T) {
	router, svc := newTestRouter(t, stubSyncer{out: refresh.Failed(refresh.StateHasLocalCopy, "fetch origin: timeout")}, nil)
	for i := 0; i < 4; i++ {
		svc.Scheduler.RunCycle(context.Background())
	}

	rr := serve(router, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, 4, resp.Refresh.ConsecutiveErrors)
	assert.Equal(t, "fetch origin: timeout", resp.Refresh.LastError)
}

func TestHandleRefreshStatus(t *testing.T) {
	router, svc := newTestRouter(t, stubSyncer{out: refresh.Success(refresh.StateHasLocalCopy, "abc")}, nil)

	rr := serve(router, http.MethodGet, "/v1/refresh/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var before RefreshStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &before))
	assert.Nil(t, before.Last)
	assert.Equal(t, uint64(0), before.Generation)
	assert.Equal(t, "1h0m0s", before.Interval)
	assert.Equal(t, 0, before.StreamClients)

	svc.Scheduler.RunCycle(context.Background())

	rr = serve(router, http.MethodGet, "/v1/refresh/status", "")
	var after RefreshStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &after))
	require.NotNil(t, after.Last)
	assert.Equal(t, refresh.StatusSuccess, after.Last.Status)
	assert.Equal(t, uint64(1), after.Generation)
	assert.Empty(t, after.GateHolder)

	rr = serve(router, http.MethodGet, "/series_with_year_month", "")
	assert.Equal(t, "1", rr.Header().Get(query.GenerationHeader))
}

func TestHandleRefreshStatus_StreamClients(t *testing.T) {
	router, svc := newTestRouter(t, stubSyncer{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Hub.Run(ctx)

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/refresh/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		rr := serve(router, http.MethodGet, "/v1/refresh/status", "")
		var resp RefreshStatusResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.StreamClients == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleRefreshHistory(t *testing.T) {
	history := &stubHistory{outcomes: []refresh.Outcome{
		refresh.Skipped(refresh.StateHasLocalCopy, "already up to date"),
		refresh.Success(refresh.StateHasLocalCopy, "abc"),
	}}
	router, _ := newTestRouter(t, stubSyncer{}, history)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
		wantCount int
	}{
		{"default limit", "", http.StatusOK, 50, 2},
		{"explicit limit", "?limit=1", http.StatusOK, 1, 1},
		{"capped limit", "?limit=5000", http.StatusOK, 1000, 2},
		{"invalid limit", "?limit=abc", http.StatusBadRequest, 0, 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history.lastLimit = 0
			rr := serve(router, http.MethodGet, "/v1/refresh/history"+tt.query, "")
			require.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantLimit, history.lastLimit)
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp HistoryResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCount, resp.Count)
			assert.Len(t, resp.Outcomes, tt.wantCount)
		})
	}
}

func TestHandleRefreshHistory_Error(t *testing.T) {
	router, _ := newTestRouter(t, stubSyncer{}, &stubHistory{err: errors.New("badger closed")})

	rr := serve(router, http.MethodGet, "/v1/refresh/history", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "badger closed")
}

func TestHandleStorageUsage(t *testing.T) {
	router, _ := newTestRouter(t, stubSyncer{}, nil)

	rr := serve(router, http.MethodGet, "/v1/storage", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var usage monitor.StorageUsage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &usage))
	assert.Contains(t, usage.Paths, "dataset")
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, stubSyncer{}, nil)
	serve(router, http.MethodGet, "/series_with_year_month", "")

	rr := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "eprec_http_requests_total")
}
