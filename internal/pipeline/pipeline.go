// Package pipeline runs one collection end to end: collect through the
// shared session, preprocess and label every post, upsert, then archive and
// announce the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/metrics"
	"github.com/JakeFAU/analytica/internal/preprocess"
	"github.com/JakeFAU/analytica/internal/session"
	"github.com/JakeFAU/analytica/internal/social"
	"github.com/JakeFAU/analytica/internal/storage"
	"github.com/JakeFAU/analytica/internal/store"
)

// Sessions hands out the authenticated browser.
type Sessions interface {
	Use(ctx context.Context, fn func(*session.Session) error) error
}

// Collector gathers posts from a browser.
type Collector interface {
	Collect(ctx context.Context, b social.Browser, req social.Request) ([]social.Post, error)
}

// Preparer detects language and translates.
type Preparer interface {
	Prepare(ctx context.Context, text string) preprocess.Prepared
}

// Classifier labels text along one dimension.
type Classifier interface {
	Classify(ctx context.Context, d classifier.Dimension, text string) (string, error)
}

// Config tunes a pipeline.
type Config struct {
	CollectTimeout      time.Duration
	ClassifyConcurrency int
	DefaultLimit        int
	// Topic is passed to the publisher with every run summary.
	Topic string
}

func (c Config) withDefaults() Config {
	if c.CollectTimeout <= 0 {
		c.CollectTimeout = 5 * time.Minute
	}
	if c.ClassifyConcurrency <= 0 {
		c.ClassifyConcurrency = 4
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = social.DefaultLimit
	}
	return c
}

// Deps are the collaborators of a Pipeline. Runs, Blobs and Publisher are optional.
type Deps struct {
	Sessions   Sessions
	Collector  Collector
	Preprocess Preparer
	Classifier Classifier
	Posts      social.PostStore
	Runs       store.RunRepository
	Blobs      social.BlobStore
	Publisher  social.Publisher
	IDs        social.IDGenerator
	Clock      social.Clock
}

// Pipeline is safe for concurrent Runs.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("sessions are required")
	case deps.Collector == nil:
		return nil, errors.New("collector is required")
	case deps.Preprocess == nil:
		return nil, errors.New("preprocess stage is required")
	case deps.Classifier == nil:
		return nil, errors.New("classifier is required")
	case deps.Posts == nil:
		return nil, errors.New("post store is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg.withDefaults(), logger: logger.Named("pipeline")}, nil
}

// Result describes a finished run.
type Result struct {
	RunID      string               `json:"run_id"`
	JobName    string               `json:"job_name,omitempty"`
	Request    social.Request       `json:"request"`
	Dimensions []string             `json:"dimensions"`
	Posts      []social.LabeledPost `json:"posts"`
	// Partial is set when the collect deadline cut the pass short.
	Partial    bool      `json:"partial"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
}

// Status maps the result to a ledger status.
func (r Result) Status() store.RunStatus {
	if r.Partial {
		return store.RunPartial
	}
	return store.RunSuccess
}

// Job names one run. An empty ID is replaced by a generated one.
type Job struct {
	ID         string
	Name       string
	Request    social.Request
	Dimensions []classifier.Dimension
}

// Run collects and labels posts for req along dims (all dimensions when empty).
func (p *Pipeline) Run(ctx context.Context, req social.Request, dims []classifier.Dimension) (Result, error) {
	return p.RunJob(ctx, Job{Request: req, Dimensions: dims})
}

// RunJob is Run for a queued or scheduled job.
func (p *Pipeline) RunJob(ctx context.Context, job Job) (Result, error) {
	req := job.Request.WithDefaults(p.cfg.DefaultLimit)
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	dims := job.Dimensions
	if len(dims) == 0 {
		dims = classifier.All()
	}
	runID := job.ID
	if runID == "" {
		var err error
		if runID, err = p.deps.IDs.NewID(); err != nil {
			return Result{}, fmt.Errorf("generate run id: %w", err)
		}
	}

	res := Result{
		RunID:      runID,
		JobName:    job.Name,
		Request:    req,
		Dimensions: dimensionNames(dims),
		StartedAt:  p.deps.Clock.Now(),
	}
	logger := p.logger.With(
		zap.String("run_id", runID),
		zap.String("target", req.String()),
		zap.Strings("dimensions", res.Dimensions),
	)
	p.startRun(ctx, logger, res)

	posts, partial, err := p.collect(ctx, logger, req)
	if err != nil {
		return p.fail(ctx, logger, res, 0, 0, fmt.Errorf("collect %s: %w", req, err))
	}
	res.Partial = partial

	labeled, err := p.label(ctx, logger, runID, posts, dims)
	if err != nil {
		return p.fail(ctx, logger, res, len(posts), countLabeled(labeled), err)
	}
	res.Posts = labeled
	res.FinishedAt = p.deps.Clock.Now()

	res.ArchiveURI = p.archive(ctx, logger, res)
	p.publish(ctx, logger, res)
	p.finishRun(ctx, logger, res.RunID, store.RunOutcome{
		Status:     res.Status(),
		Collected:  len(posts),
		Labeled:    len(labeled),
		FinishedAt: res.FinishedAt,
	})
	metrics.ObservePipelineRun(string(req.Kind), string(res.Status()), res.FinishedAt.Sub(res.StartedAt))
	logger.Info("run finished",
		zap.Int("collected", len(posts)),
		zap.Bool("partial", res.Partial),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

// collect runs the collector under the collect deadline. A deadline that
// fires after some posts were gathered yields a partial result.
func (p *Pipeline) collect(ctx context.Context, logger *zap.Logger, req social.Request) ([]social.Post, bool, error) {
	collectCtx, cancel := context.WithTimeout(ctx, p.cfg.CollectTimeout)
	defer cancel()

	var posts []social.Post
	err := p.deps.Sessions.Use(collectCtx, func(s *session.Session) error {
		var err error
		posts, err = p.deps.Collector.Collect(collectCtx, s.Browser(), req)
		return err
	})
	if err == nil {
		return posts, false, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && len(posts) > 0 {
		logger.Warn("collect deadline reached, continuing with partial result",
			zap.Duration("timeout", p.cfg.CollectTimeout),
			zap.Int("collected", len(posts)))
		return posts, true, nil
	}
	return nil, false, err
}

// label prepares, classifies and upserts posts concurrently. Output order
// matches input order.
func (p *Pipeline) label(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	posts []social.Post,
	dims []classifier.Dimension,
) ([]social.LabeledPost, error) {
	out := make([]social.LabeledPost, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ClassifyConcurrency)
	for i, post := range posts {
		g.Go(func() error {
			lp, err := p.labelOne(gctx, logger, runID, post, dims)
			if err != nil {
				return err
			}
			if err := p.deps.Posts.Upsert(gctx, lp); err != nil {
				return fmt.Errorf("store post %s: %w", post.Key(), err)
			}
			out[i] = lp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (p *Pipeline) labelOne(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	post social.Post,
	dims []classifier.Dimension,
) (social.LabeledPost, error) {
	prepared := p.deps.Preprocess.Prepare(ctx, post.Text)
	lp := social.LabeledPost{
		Post:        post,
		Language:    prepared.Language,
		Labels:      make(map[string]string, len(dims)),
		RunID:       runID,
		CollectedAt: p.deps.Clock.Now(),
	}
	if prepared.Translated {
		lp.TranslatedText = prepared.AnalysisText
	}
	for _, d := range dims {
		label, err := p.deps.Classifier.Classify(ctx, d, prepared.AnalysisText)
		if err != nil {
			if ctx.Err() != nil {
				return lp, fmt.Errorf("classify %s: %w", d, ctx.Err())
			}
			// The post is still stored; the dimension is flagged instead of guessed.
			if !errors.Is(err, classifier.ErrModelUnavailable) {
				logger.Warn("classification failed",
					zap.String("platform_id", post.PlatformID),
					zap.Stringer("dimension", d),
					zap.Error(err))
			}
			lp.Unavailable = append(lp.Unavailable, string(d))
			continue
		}
		lp.Labels[string(d)] = label
	}
	return lp, nil
}

func (p *Pipeline) archive(ctx context.Context, logger *zap.Logger, res Result) string {
	if p.deps.Blobs == nil {
		return ""
	}
	uri, err := storage.WriteJSON(ctx, p.deps.Blobs, storage.RunArchivePath(res.RunID, res.StartedAt), res)
	if err != nil {
		logger.Warn("archive run failed", zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, res Result) {
	if p.deps.Publisher == nil {
		return
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, Summarize(res))
	if err != nil {
		logger.Warn("publish run summary failed", zap.Error(err))
		return
	}
	logger.Debug("run summary published", zap.String("message_id", id))
}

func (p *Pipeline) fail(ctx context.Context, logger *zap.Logger, res Result, collected, labeled int, err error) (Result, error) {
	res.FinishedAt = p.deps.Clock.Now()
	msg := err.Error()
	p.finishRun(ctx, logger, res.RunID, store.RunOutcome{
		Status:       store.RunError,
		Collected:    collected,
		Labeled:      labeled,
		FinishedAt:   res.FinishedAt,
		ErrorMessage: &msg,
	})
	metrics.ObservePipelineRun(string(res.Request.Kind), string(store.RunError), res.FinishedAt.Sub(res.StartedAt))
	logger.Error("run failed", zap.Error(err))
	return res, err
}

func (p *Pipeline) startRun(ctx context.Context, logger *zap.Logger, res Result) {
	if p.deps.Runs == nil {
		return
	}
	err := p.deps.Runs.StartRun(context.WithoutCancel(ctx), store.Run{
		ID:         res.RunID,
		JobName:    res.JobName,
		Request:    res.Request,
		Dimensions: res.Dimensions,
		StartedAt:  res.StartedAt,
	})
	if err != nil {
		logger.Warn("record run start failed", zap.Error(err))
	}
}

func (p *Pipeline) finishRun(ctx context.Context, logger *zap.Logger, runID string, outcome store.RunOutcome) {
	if p.deps.Runs == nil {
		return
	}
	if err := p.deps.Runs.FinishRun(context.WithoutCancel(ctx), runID, outcome); err != nil {
		logger.Warn("record run finish failed", zap.Error(err))
	}
}

func dimensionNames(dims []classifier.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = string(d)
	}
	return out
}

func countLabeled(posts []social.LabeledPost) int {
	n := 0
	for _, p := range posts {
		if p.PlatformID != "" {
			n++
		}
	}
	return n
}
