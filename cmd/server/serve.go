package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/eplot/eprec/pkg/access"
	"github.com/eplot/eprec/pkg/server"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 30 * time.Second
	shutdownTimeout    = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the aggregation API and refresh the dataset in the background",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cfg)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port (PORT)")
	flags.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "time between refresh cycles (EPREC_REFRESH_INTERVAL)")
	flags.StringVar(&cfg.JournalDir, "journal-dir", cfg.JournalDir, "refresh journal directory (EPREC_JOURNAL_DIR)")
	flags.Int64Var(&cfg.JournalMemoryMB, "journal-memory-mb", cfg.JournalMemoryMB, "journal memory budget in MB (EPREC_JOURNAL_MEMORY_MB)")
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg server.Config) error {
	log.Println("Starting eprec server...")

	j, err := server.InitializeJournal(cfg)
	if err != nil {
		return fmt.Errorf("failed to open refresh journal: %w", err)
	}
	defer j.Close()

	// One coordinator shared by the refresher and every query.
	coord := access.New()
	queryHandler := server.InitializeHandlers(cfg, coord)
	scheduler, hub, refreshMonitor := server.InitializeRefresh(cfg, coord, j)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	wg.Add(1)
	go server.RunHub(ctx, hub, &wg)

	wg.Add(1)
	go server.RunRefresh(ctx, scheduler, &wg)

	stopGC := make(chan struct{})
	wg.Add(1)
	go server.DefaultJournalGC(j, stopGC, &wg)

	router := mux.NewRouter()
	server.SetupRoutes(router, server.Services{
		Coordinator:    coord,
		Query:          queryHandler,
		Scheduler:      scheduler,
		Hub:            hub,
		History:        j,
		RefreshMonitor: refreshMonitor,
		StorageMonitor: server.InitializeStorageMonitor(cfg),
	}, cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://localhost:%s", cfg.Port)
		log.Println("  GET|POST /series_with_year_month    - series grouped by year-month")
		log.Println("  GET|POST /get_content_by_series_id  - latest abstracts per episode")
		log.Println("  GET      /v1/health                 - health and refresh status")
		log.Println("  GET      /v1/refresh/history        - refresh journal")
		log.Println("  GET      /metrics                   - Prometheus endpoint")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		log.Println("Shutdown signal received...")
	case runErr = <-serveErr:
		log.Printf("Server failed: %v", runErr)
	}

	// Cancel first so the scheduler and hub return before wg.Wait.
	log.Println("Stopping background tasks...")
	cancel()
	close(stopGC)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown warning: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// A refresh cycle mid-clone may take a while to notice cancellation.
	select {
	case <-done:
		log.Println("All background tasks stopped cleanly")
	case <-time.After(shutdownTimeout):
		log.Println("Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("eprec server exited")
	return runErr
}
