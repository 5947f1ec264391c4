package refresh

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/eplot/eprec/pkg/access"
)

// Scheduler runs the syncer on a fixed interval, forever, independent of
// request traffic. Cycles never overlap.
type Scheduler struct {
	syncer   Syncer
	coord    *access.Coordinator
	interval time.Duration

	mu        sync.RWMutex
	observers []Observer
	last      *Outcome
	cycleMu   sync.Mutex
}

// NewScheduler creates a scheduler. coord must be the coordinator shared with
// the query handlers.
func NewScheduler(syncer Syncer, coord *access.Coordinator, interval time.Duration) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		coord:    coord,
		interval: interval,
	}
}

// Observe registers an observer for every subsequent cycle.
func (s *Scheduler) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Interval returns the configured cycle interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Last returns the most recent outcome, if any cycle has run.
func (s *Scheduler) Last() (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// RunCycle performs one refresh. A panicking syncer is reported as a failed
// cycle; the coordinator's scoped tickets have already been released by then.
func (s *Scheduler) RunCycle(ctx context.Context) (out Outcome) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Failed(StateUnknown, fmt.Sprintf("panic: %v", r))
		}
		out.StartedAt = start
		out.Duration = time.Since(start)
		out.Generation = s.coord.Generation()
		s.record(out)
	}()

	return s.syncer.Sync(ctx, s.coord)
}

// Run performs a cycle immediately and then once per interval until ctx is
// cancelled. Failed cycles are retried only by the next scheduled cycle.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Refresh scheduler started (runs every %v)", s.interval)
	s.RunCycle(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-ctx.Done():
			log.Println("Stopping refresh scheduler")
			return
		}
	}
}

func (s *Scheduler) record(o Outcome) {
	cyclesTotal.WithLabelValues(string(o.Status)).Inc()
	cycleDuration.Observe(o.Duration.Seconds())

	switch o.Status {
	case StatusFailed:
		log.Printf("Refresh failed after %v (state=%s): %s", o.Duration.Round(time.Millisecond), o.State, o.Reason)
	case StatusSkipped:
		log.Printf("Refresh skipped (state=%s): %s", o.State, o.Reason)
	default:
		log.Printf("Refresh completed in %v (state=%s, commit=%s, generation=%d)",
			o.Duration.Round(time.Millisecond), o.State, o.Commit, o.Generation)
	}

	s.mu.Lock()
	s.last = &o
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, obs := range observers {
		obs.ObserveRefresh(o)
	}
}
