package access

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Purpose describes why a ticket was taken. It only feeds status and metrics;
// every purpose gets the same exclusive access.
type Purpose string

const (
	PurposeRead    Purpose = "read"
	PurposeReplace Purpose = "replace"
)

// Coordinator serializes all access to the dataset snapshot.
// At most one ticket is outstanding at any time, whether it belongs to a
// query or to the refresher. Waiters are served in FIFO order.
type Coordinator struct {
	sem        *semaphore.Weighted
	generation atomic.Uint64

	mu     sync.Mutex
	holder *Ticket
}

// Ticket is proof of exclusive access. It must be released exactly once;
// extra releases are ignored.
type Ticket struct {
	purpose    Purpose
	acquiredAt time.Time
	replaced   bool
	released   atomic.Bool
}

// Purpose returns what the ticket was acquired for.
func (t *Ticket) Purpose() Purpose { return t.purpose }

// MarkReplaced records that the snapshot was swapped while this ticket was
// held. The generation advances when the ticket is released.
func (t *Ticket) MarkReplaced() { t.replaced = true }

// New creates a coordinator with the gate open and generation zero.
func New() *Coordinator {
	return &Coordinator{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate is free. There is no timeout: the only way
// to stop waiting is to cancel ctx.
func (c *Coordinator) Acquire(ctx context.Context, purpose Purpose) (*Ticket, error) {
	start := time.Now()
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %s ticket: %w", purpose, err)
	}
	t := &Ticket{purpose: purpose, acquiredAt: time.Now()}
	waitSeconds.WithLabelValues(string(purpose)).Observe(t.acquiredAt.Sub(start).Seconds())

	c.mu.Lock()
	c.holder = t
	c.mu.Unlock()
	return t, nil
}

// Release opens the gate for the next waiter.
func (c *Coordinator) Release(t *Ticket) {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	if t.replaced {
		c.generation.Add(1)
	}
	holdSeconds.WithLabelValues(string(t.purpose)).Observe(time.Since(t.acquiredAt).Seconds())

	c.mu.Lock()
	if c.holder == t {
		c.holder = nil
	}
	c.mu.Unlock()

	c.sem.Release(1)
}

// Read runs fn while holding a read ticket. fn receives the generation of
// the snapshot it is allowed to see. The ticket is released on every exit
// path, panics included.
func (c *Coordinator) Read(ctx context.Context, fn func(generation uint64) error) error {
	t, err := c.Acquire(ctx, PurposeRead)
	if err != nil {
		return err
	}
	defer c.Release(t)
	return fn(c.generation.Load())
}

// Replace runs fn while holding a replace ticket. The generation advances
// only if fn returns nil.
func (c *Coordinator) Replace(ctx context.Context, fn func() error) error {
	t, err := c.Acquire(ctx, PurposeReplace)
	if err != nil {
		return err
	}
	defer c.Release(t)
	if err := fn(); err != nil {
		return err
	}
	t.MarkReplaced()
	return nil
}

// Generation returns how many replaces have completed.
func (c *Coordinator) Generation() uint64 {
	return c.generation.Load()
}

// Holder reports the purpose of the current ticket, if any.
func (c *Coordinator) Holder() (Purpose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder == nil {
		return "", false
	}
	return c.holder.Purpose(), true
}
