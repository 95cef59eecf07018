// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/social"
	"github.com/JakeFAU/analytica/internal/worker"
)

const enqueueTimeout = 5 * time.Second

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue        social.Queue
	workers      []*worker.Worker
	ids          social.IDGenerator
	clock        social.Clock
	defaultLimit int
}

// New creates a Dispatcher. ids and clock are only needed by Submit.
func New(queue social.Queue, workers []*worker.Worker, ids social.IDGenerator, clock social.Clock, defaultLimit int) *Dispatcher {
	return &Dispatcher{
		queue:        queue,
		workers:      workers,
		ids:          ids,
		clock:        clock,
		defaultLimit: defaultLimit,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item social.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Submit validates a job, assigns it an ID and queues it. The ID doubles as
// the run ID in the ledger.
func (d *Dispatcher) Submit(ctx context.Context, name string, req social.Request, dims []string) (string, error) {
	req = req.WithDefaults(d.defaultLimit)
	if err := req.Validate(); err != nil {
		return "", err
	}
	if len(dims) > 0 {
		if _, err := classifier.ParseDimensions(dims); err != nil {
			return "", err
		}
	}
	jobID, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := social.QueueItem{
		JobID:      jobID,
		Name:       name,
		Request:    req,
		Dimensions: dims,
		Submitted:  d.clock.Now().Unix(),
	}
	if err := d.Enqueue(queueCtx, item); err != nil {
		return "", err
	}
	return jobID, nil
}
