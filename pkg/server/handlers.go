package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eplot/eprec/pkg/access"
	"github.com/eplot/eprec/pkg/config"
	"github.com/eplot/eprec/pkg/httpx"
	"github.com/eplot/eprec/pkg/query"
	"github.com/eplot/eprec/pkg/refresh"
	"github.com/eplot/eprec/pkg/server/monitor"
)

var startTime = time.Now()

// History is the read side of the refresh journal.
type History interface {
	Recent(ctx context.Context, limit int) ([]refresh.Outcome, error)
}

// Services holds everything the router dispatches to.
type Services struct {
	Coordinator    *access.Coordinator
	Query          *query.Handler
	Scheduler      *refresh.Scheduler
	Hub            *refresh.Hub
	History        History
	RefreshMonitor *monitor.RefreshMonitor
	StorageMonitor *monitor.StorageMonitor
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string                `json:"status"`
	Version string                `json:"version"`
	Uptime  string                `json:"uptime"`
	Refresh monitor.RefreshStatus `json:"refresh"`
}

// RefreshStatusResponse describes the scheduler and the gate.
type RefreshStatusResponse struct {
	Generation    uint64           `json:"generation"`
	GateHolder    string           `json:"gate_holder,omitempty"`
	Interval      string           `json:"interval"`
	StreamClients int              `json:"stream_clients"`
	Last          *refresh.Outcome `json:"last,omitempty"`
}

// HistoryResponse lists journaled refresh outcomes, newest first.
type HistoryResponse struct {
	Outcomes []refresh.Outcome `json:"outcomes"`
	Count    int               `json:"count"`
}

// handleHealth returns service health status.
func handleHealth(refreshMonitor *monitor.RefreshMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overallStatus := "healthy"
		statusCode := http.StatusOK

		if !refreshMonitor.IsHealthy() {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.RespondJSON(w, statusCode, HealthResponse{
			Status:  overallStatus,
			Version: config.DefaultVersion,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Refresh: refreshMonitor.Status(),
		})
	}
}

// handleStorageUsage returns current storage usage.
func handleStorageUsage(storageMonitor *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usage, err := storageMonitor.Usage()
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, usage)
	}
}

// handleRefreshStatus reports the last cycle and the current generation.
// It also shows who holds the gate and how many stream clients are attached.
func handleRefreshStatus(coord *access.Coordinator, scheduler *refresh.Scheduler, hub *refresh.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := RefreshStatusResponse{
			Generation:    coord.Generation(),
			Interval:      scheduler.Interval().String(),
			StreamClients: hub.Clients(),
		}
		if purpose, held := coord.Holder(); held {
			resp.GateHolder = string(purpose)
		}
		if last, ok := scheduler.Last(); ok {
			resp.Last = &last
		}
		httpx.RespondJSON(w, http.StatusOK, resp)
	}
}

// handleRefreshHistory returns journaled outcomes. ?limit=N, default 50.
func handleRefreshHistory(history History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := config.RefreshHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
				return
			}
			limit = min(n, config.RefreshHistoryMaxLimit)
		}

		outcomes, err := history.Recent(r.Context(), limit)
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		if outcomes == nil {
			outcomes = []refresh.Outcome{}
		}
		httpx.RespondJSON(w, http.StatusOK, HistoryResponse{Outcomes: outcomes, Count: len(outcomes)})
	}
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, svc Services, port string) {
	router.Use(httpx.Middleware)
	router.Use(corsMiddleware(port))

	// Read endpoints keep their original paths and accept GET or POST.
	router.HandleFunc("/series_with_year_month", svc.Query.HandleSeriesByPeriod).Methods("GET", "POST", "OPTIONS")
	router.HandleFunc("/get_content_by_series_id", svc.Query.HandleContentBySeriesID).Methods("GET", "POST", "OPTIONS")

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/health", handleHealth(svc.RefreshMonitor)).Methods("GET")
	api.HandleFunc("/storage", handleStorageUsage(svc.StorageMonitor)).Methods("GET")
	api.HandleFunc("/refresh/status", handleRefreshStatus(svc.Coordinator, svc.Scheduler, svc.Hub)).Methods("GET")
	if svc.History != nil {
		api.HandleFunc("/refresh/history", handleRefreshHistory(svc.History)).Methods("GET")
	}
	api.HandleFunc("/refresh/ws", svc.Hub.HandleWebSocket).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// corsMiddleware restricts cross-origin access to localhost origins.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Expose-Headers", query.GenerationHeader)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
