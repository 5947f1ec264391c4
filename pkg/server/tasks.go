package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/eplot/eprec/pkg/config"
	"github.com/eplot/eprec/pkg/refresh"
	"github.com/eplot/eprec/pkg/refresh/journal"
)

// RunRefresh runs the refresh scheduler until ctx is cancelled.
func RunRefresh(ctx context.Context, scheduler *refresh.Scheduler, wg *sync.WaitGroup) {
	defer wg.Done()
	scheduler.Run(ctx)
}

// RunHub runs the refresh event hub until ctx is cancelled.
func RunHub(ctx context.Context, hub *refresh.Hub, wg *sync.WaitGroup) {
	defer wg.Done()
	hub.Run(ctx)
}

// RunJournalGC prunes journal entries past retention and runs BadgerDB value
// log GC periodically to reclaim disk space.
func RunJournalGC(j *journal.Journal, interval, retention time.Duration, stop chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Journal GC scheduler started (runs every %v, keeps %v)", interval, retention)

	for {
		select {
		case <-ticker.C:
			collectJournal(j, retention)
		case <-stop:
			log.Println("Stopping journal GC scheduler")
			return
		}
	}
}

func collectJournal(j *journal.Journal, retention time.Duration) {
	start := time.Now()

	removed, err := j.Prune(context.Background(), start.Add(-retention))
	if err != nil {
		log.Printf("Journal prune failed: %v", err)
	} else if removed > 0 {
		log.Printf("Pruned %d refresh outcomes older than %v", removed, retention)
	}

	// 0.5 discard ratio: rewrite a value log file once half of it is garbage.
	rewrote, err := j.RunGC(0.5)
	switch {
	case errors.Is(err, badger.ErrGCInMemoryMode):
	case err != nil:
		log.Printf("Journal GC failed: %v", err)
	case rewrote:
		log.Printf("Journal GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
	}
}

// DefaultJournalGC runs RunJournalGC with the configured interval and
// retention.
func DefaultJournalGC(j *journal.Journal, stop chan struct{}, wg *sync.WaitGroup) {
	RunJournalGC(j, config.JournalGCInterval, config.RefreshJournalRetention, stop, wg)
}
