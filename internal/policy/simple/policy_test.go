// Package simple includes tests for the unpaced navigation policy.
package simple

import (
	"context"
	"errors"
	"testing"
)

// TestPolicyWaitReturnsImmediately ensures navigations are never delayed.
func TestPolicyWaitReturnsImmediately(t *testing.T) {
	t.Parallel()

	p := New()
	if err := p.Wait(context.Background(), "https://twitter.com/nasa"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

// TestPolicyWaitHonoursCancel ensures a canceled context is reported.
func TestPolicyWaitHonoursCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().Wait(ctx, "https://twitter.com/nasa"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
