package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eplot/eprec/pkg/access"
	"github.com/eplot/eprec/pkg/dataset"
	"github.com/eplot/eprec/pkg/dataset/memory"
	"github.com/eplot/eprec/pkg/query"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"valid", "http://localhost:3001", false},
		{"trailing slash", "http://localhost:3001/", false},
		{"empty", "", true},
		{"no scheme", "localhost:3001", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{BaseURL: tt.baseURL})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 30*time.Second, c.client.Timeout)
			assert.Equal(t, "http://localhost:3001", c.base.String())
		})
	}
}

func newServer(t *testing.T, store *memory.Store) *Client {
	t.Helper()
	h := query.NewHandler(access.New(), store, 3)
	mux := http.NewServeMux()
	mux.HandleFunc("/series_with_year_month", h.HandleSeriesByPeriod)
	mux.HandleFunc("/get_content_by_series_id", h.HandleContentBySeriesID)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestClient_SeriesByPeriod(t *testing.T) {
	c := newServer(t, memory.New([]dataset.SeriesRecord{
		{ID: 2, Name: "Beta", Year: "2022", Month: "10"},
		{ID: 1, Name: "Alpha", Year: "2022", Month: "10"},
	}, nil))

	view, gen, err := c.SeriesByPeriod(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)
	require.Len(t, view["202210"], 2)
	assert.Equal(t, "Alpha", view["202210"][0].SeriesName)
	assert.Equal(t, int64(1), view["202210"][0].ID)
}

func TestClient_ContentBySeriesID(t *testing.T) {
	c := newServer(t, memory.New(nil, []dataset.EpisodeRecord{
		{Name: "Ep", Year: "2022", Month: "01", Num: "1", Abstract: "old", SeriesID: 4},
		{Name: "Ep", Year: "2022", Month: "02", Num: "1", Abstract: "new", SeriesID: 4},
	}))

	view, _, err := c.ContentBySeriesID(context.Background(), []int64{4})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, view["Ep"])

	empty, _, err := c.ContentBySeriesID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_ServerError(t *testing.T) {
	store := memory.New(nil, nil)
	store.FailOpen(errors.New("no such file"))
	c := newServer(t, store)

	_, _, err := c.SeriesByPeriod(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "DB open error", statusErr.Body)
}

func TestClient_SendsIDList(t *testing.T) {
	var got query.SeriesIDList
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set(query.GenerationHeader, "12")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, gen, err := c.ContentBySeriesID(context.Background(), []int64{3, 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), gen)
	assert.Equal(t, []int64{3, 1}, got.IDList)
}
