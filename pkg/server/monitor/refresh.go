package monitor

import (
	"sync"
	"time"

	"github.com/eplot/eprec/pkg/refresh"
)

// RefreshMonitor tracks refresh health from the scheduler's outcomes.
type RefreshMonitor struct {
	staleAfter     time.Duration
	maxConsecutive int

	mu                sync.RWMutex
	started           time.Time
	lastSuccess       time.Time
	lastAttempt       time.Time
	lastStatus        refresh.Status
	lastCommit        string
	consecutiveErrors int
	lastError         string
}

// NewRefreshMonitor creates a monitor. A refresh is unhealthy when nothing
// has succeeded within staleAfter, or after more than maxConsecutive failed
// cycles in a row.
func NewRefreshMonitor(staleAfter time.Duration, maxConsecutive int) *RefreshMonitor {
	return &RefreshMonitor{
		staleAfter:     staleAfter,
		maxConsecutive: maxConsecutive,
		started:        time.Now(),
	}
}

// ObserveRefresh implements refresh.Observer. Skipped cycles count as
// successes: the local copy was confirmed current.
func (rm *RefreshMonitor) ObserveRefresh(o refresh.Outcome) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	at := o.StartedAt.Add(o.Duration)
	if o.StartedAt.IsZero() {
		at = time.Now()
	}
	rm.lastAttempt = at
	rm.lastStatus = o.Status

	if o.Status == refresh.StatusFailed {
		rm.consecutiveErrors++
		rm.lastError = o.Reason
		return
	}
	rm.lastSuccess = at
	rm.consecutiveErrors = 0
	rm.lastError = ""
	if o.Commit != "" {
		rm.lastCommit = o.Commit
	}
}

// IsHealthy returns true if refreshes are keeping up.
// Unhealthy conditions:
//   - No success within staleAfter (measured from start-up until the first one)
//   - More than maxConsecutive consecutive failures
func (rm *RefreshMonitor) IsHealthy() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.healthyLocked()
}

func (rm *RefreshMonitor) healthyLocked() bool {
	since := rm.lastSuccess
	if since.IsZero() {
		since = rm.started
	}
	if time.Since(since) > rm.staleAfter {
		return false
	}
	return rm.consecutiveErrors <= rm.maxConsecutive
}

// RefreshStatus is the refresh section of the health response.
type RefreshStatus struct {
	Healthy           bool           `json:"healthy"`
	LastStatus        refresh.Status `json:"last_status,omitempty"`
	LastCommit        string         `json:"last_commit,omitempty"`
	LastSuccess       string         `json:"last_success,omitempty"`
	TimeSinceSuccess  string         `json:"time_since_success,omitempty"`
	LastAttempt       string         `json:"last_attempt,omitempty"`
	ConsecutiveErrors int            `json:"consecutive_errors,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
}

// Status returns current refresh status for health checks.
func (rm *RefreshMonitor) Status() RefreshStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	status := RefreshStatus{
		Healthy:    rm.healthyLocked(),
		LastStatus: rm.lastStatus,
		LastCommit: rm.lastCommit,
	}

	if !rm.lastSuccess.IsZero() {
		status.LastSuccess = rm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(rm.lastSuccess).Round(time.Second).String()
	}
	if !rm.lastAttempt.IsZero() {
		status.LastAttempt = rm.lastAttempt.Format(time.RFC3339)
	}
	if rm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = rm.consecutiveErrors
		status.LastError = rm.lastError
	}
	return status
}
