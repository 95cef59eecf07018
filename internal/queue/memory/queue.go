// Package memory provides the bounded in-process job queue used by serve.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/analytica/internal/social"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = social.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan social.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan social.QueueItem, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
// Enqueueing after Close fails with ErrClosed.
func (q *Queue) Enqueue(ctx context.Context, job social.QueueItem) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (social.QueueItem, error) {
	select {
	case <-ctx.Done():
		return social.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return social.QueueItem{}, ErrClosed
		}
		return job, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}
