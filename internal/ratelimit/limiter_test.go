package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveRate(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	require.Error(t, err)

	_, err = New(-1)
	require.Error(t, err)
}

func TestFirstWaitIsImmediate(t *testing.T) {
	t.Parallel()

	l, err := New(0.1) // one request per ten seconds
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitEnforcesMinimumInterval(t *testing.T) {
	t.Parallel()

	l, err := New(10) // 100ms between requests
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	// First call is free, the next two wait ~100ms each.
	require.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestWaitInterruptedByContext(t *testing.T) {
	t.Parallel()

	l, err := New(0.1)
	require.NoError(t, err)

	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = l.Wait(ctx)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}
