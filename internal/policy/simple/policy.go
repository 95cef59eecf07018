// Package simple contains the unpaced navigation policy.
package simple

import (
	"context"
	"fmt"
)

// Policy lets every navigation through immediately.
type Policy struct{}

// New creates a new Policy.
func New() *Policy {
	return &Policy{}
}

// Wait only honours cancellation.
func (Policy) Wait(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("navigation canceled: %w", err)
	}
	return nil
}
