package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireEnforcesMinimumSpacing(t *testing.T) {
	// 6000 rpm -> 10ms spacing keeps the test fast while exercising the
	// same arithmetic as the production 30 rpm budget.
	l := New(6000)
	require.Equal(t, 10*time.Millisecond, l.Interval())

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	elapsed := time.Since(start)

	// First call is free; the remaining four each wait a full interval.
	require.GreaterOrEqual(t, elapsed, 4*l.Interval())
}

func TestAcquireSerializesConcurrentCallers(t *testing.T) {
	l := New(6000)
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(ctx))
		}()
	}
	wg.Wait()

	require.GreaterOrEqual(t, time.Since(start), 3*l.Interval())
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	l := New(1) // 60s spacing: the second acquire would block for a minute.
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(cancelCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestZeroBudgetDisablesSpacing(t *testing.T) {
	l := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	require.Less(t, time.Since(start), time.Second)
}
