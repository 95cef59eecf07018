// Package worker implements the job execution loop behind the dispatcher.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/metrics"
	"github.com/JakeFAU/analytica/internal/pipeline"
	"github.com/JakeFAU/analytica/internal/social"
)

// Runner executes one pipeline job.
type Runner interface {
	RunJob(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds a whole run, collection and labeling included.
	JobTimeout time.Duration
}

// Worker consumes queue items and runs them through the pipeline.
type Worker struct {
	id     int
	queue  social.Queue
	runner Runner
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue social.Queue, runner Runner, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, social.ErrQueueClosed) {
				w.logger.Debug("queue closed, worker exiting")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.String("name", item.Name))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item social.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("target", item.Request.String()))
	job, err := toJob(item)
	if err != nil {
		logger.Error("rejecting job", zap.Error(err))
		return
	}

	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	res, err := w.runner.RunJob(ctx, job)
	if err != nil {
		logger.Error("job failed", zap.Error(err))
		return
	}
	logger.Info("job finished",
		zap.String("run_id", res.RunID),
		zap.Int("posts", len(res.Posts)),
		zap.String("status", string(res.Status())),
	)
}

func toJob(item social.QueueItem) (pipeline.Job, error) {
	var dims []classifier.Dimension
	if len(item.Dimensions) > 0 {
		parsed, err := classifier.ParseDimensions(item.Dimensions)
		if err != nil {
			return pipeline.Job{}, fmt.Errorf("job %s: %w", item.JobID, err)
		}
		dims = parsed
	}
	return pipeline.Job{
		ID:         item.JobID,
		Name:       item.Name,
		Request:    item.Request,
		Dimensions: dims,
	}, nil
}
