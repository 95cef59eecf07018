package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitPacesPerHost(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: one token every 100ms.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://twitter.com/nasa"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://twitter.com/esa"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// A different host has its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://x.com/nasa"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for range 20 {
		require.NoError(t, l.Wait(context.Background(), "https://twitter.com/nasa"))
	}
}

func TestLimiterContextCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://twitter.com/a"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://twitter.com/b"))
}

func TestLimiterUnparseableURL(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 100, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "::not a url"))
	l.mu.Lock()
	_, ok := l.limiters["unknown"]
	l.mu.Unlock()
	require.True(t, ok)
}
