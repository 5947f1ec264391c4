package access

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_MutualExclusion(t *testing.T) {
	c := New()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			purpose := PurposeRead
			if i%10 == 0 {
				purpose = PurposeReplace
			}
			ticket, err := c.Acquire(ctx, purpose)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			c.Release(ticket)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestCoordinator_AcquireBlocksUntilRelease(t *testing.T) {
	c := New()
	ctx := context.Background()

	first, err := c.Acquire(ctx, PurposeReplace)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := c.Acquire(ctx, PurposeRead)
		if err == nil {
			close(acquired)
			c.Release(second)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while first ticket was held")
	case <-time.After(50 * time.Millisecond):
	}

	c.Release(first)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}

func TestCoordinator_DoubleReleaseIsNoop(t *testing.T) {
	c := New()
	ctx := context.Background()

	ticket, err := c.Acquire(ctx, PurposeRead)
	require.NoError(t, err)
	c.Release(ticket)
	c.Release(ticket)
	c.Release(nil)

	// A stray second release must not open the gate twice.
	a, err := c.Acquire(ctx, PurposeRead)
	require.NoError(t, err)

	ctxShort, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctxShort, PurposeRead)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.Release(a)
}

func TestCoordinator_ReadReleasesOnError(t *testing.T) {
	c := New()
	ctx := context.Background()
	boom := errors.New("query failed")

	err := c.Read(ctx, func(uint64) error { return boom })
	require.ErrorIs(t, err, boom)

	_, held := c.Holder()
	assert.False(t, held)

	ticket, err := c.Acquire(ctx, PurposeRead)
	require.NoError(t, err)
	c.Release(ticket)
}

func TestCoordinator_ReadReleasesOnPanic(t *testing.T) {
	c := New()
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = c.Read(ctx, func(uint64) error { panic("boom") })
	}()

	ctxShort, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	ticket, err := c.Acquire(ctxShort, PurposeRead)
	require.NoError(t, err)
	c.Release(ticket)
}

func TestCoordinator_Generation(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Replace(ctx, func() error { return nil }))
	assert.Equal(t, uint64(1), c.Generation())

	err := c.Replace(ctx, func() error { return errors.New("half done") })
	require.Error(t, err)
	assert.Equal(t, uint64(1), c.Generation(), "failed replace must not advance generation")

	var seen uint64
	require.NoError(t, c.Read(ctx, func(gen uint64) error {
		seen = gen
		return nil
	}))
	assert.Equal(t, uint64(1), seen)
}

func TestCoordinator_Holder(t *testing.T) {
	c := New()

	_, held := c.Holder()
	assert.False(t, held)

	ticket, err := c.Acquire(context.Background(), PurposeReplace)
	require.NoError(t, err)

	purpose, held := c.Holder()
	assert.True(t, held)
	assert.Equal(t, PurposeReplace, purpose)
	assert.Equal(t, ticket.Purpose(), purpose)

	c.Release(ticket)
	_, held = c.Holder()
	assert.False(t, held)
}
