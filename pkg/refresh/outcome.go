package refresh

import (
	"context"
	"time"

	"github.com/eplot/eprec/pkg/access"
)

// Status is the result class of one refresh cycle.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// State is where the local copy stood when a cycle began.
type State string

const (
	StateNoLocalCopy  State = "no_local_copy"
	StateHasLocalCopy State = "has_local_copy"
	StateUnknown      State = "unknown"
)

// Outcome describes one refresh cycle. Nothing acts on it beyond logging,
// health reporting and history.
type Outcome struct {
	Status      Status        `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	State       State         `json:"state"`
	Commit      string        `json:"commit,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Generation  uint64        `json:"generation"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Success builds a successful outcome.
func Success(state State, commit string) Outcome {
	return Outcome{Status: StatusSuccess, State: state, Commit: commit}
}

// Skipped builds an outcome for a cycle that had nothing to do.
func Skipped(state State, reason string) Outcome {
	return Outcome{Status: StatusSkipped, State: state, Reason: reason}
}

// Failed builds an outcome for a cycle that gave up.
func Failed(state State, reason string) Outcome {
	return Outcome{Status: StatusFailed, State: state, Reason: reason}
}

// Syncer brings the local snapshot up to date with its remote.
// Implementations take a replace ticket from coord only around the step
// that changes files readers can see, and report every failure in the
// returned outcome instead of returning an error.
type Syncer interface {
	Sync(ctx context.Context, coord *access.Coordinator) Outcome
}

// Observer receives every outcome.
type Observer interface {
	ObserveRefresh(Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

// ObserveRefresh calls f(o).
func (f ObserverFunc) ObserveRefresh(o Outcome) { f(o) }
