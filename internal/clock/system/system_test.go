package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsUTCWallTime(t *testing.T) {
	t.Parallel()

	before := time.Now()
	got := New().Now()
	after := time.Now()

	require.Equal(t, time.UTC, got.Location())
	require.False(t, got.Before(before.Add(-time.Millisecond)))
	require.False(t, got.After(after.Add(time.Millisecond)))
}

func TestNowStampsAreOrdered(t *testing.T) {
	t.Parallel()

	clk := New()
	started := clk.Now()
	finished := clk.Now()
	require.False(t, finished.Before(started), "a run may not finish before it started")
}
