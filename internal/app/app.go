// Package app builds the analytica object graph from configuration and owns
// the lifecycle of its long-lived services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/api"
	"github.com/JakeFAU/analytica/internal/browser/headless"
	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/clock/system"
	"github.com/JakeFAU/analytica/internal/collector"
	"github.com/JakeFAU/analytica/internal/config"
	"github.com/JakeFAU/analytica/internal/dispatcher"
	"github.com/JakeFAU/analytica/internal/hash/sha256"
	"github.com/JakeFAU/analytica/internal/id/uuid"
	"github.com/JakeFAU/analytica/internal/inference"
	"github.com/JakeFAU/analytica/internal/pipeline"
	"github.com/JakeFAU/analytica/internal/policy/ratelimit"
	"github.com/JakeFAU/analytica/internal/policy/simple"
	"github.com/JakeFAU/analytica/internal/preprocess"
	memorypublisher "github.com/JakeFAU/analytica/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/analytica/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/analytica/internal/queue/memory"
	"github.com/JakeFAU/analytica/internal/scheduler"
	"github.com/JakeFAU/analytica/internal/session"
	"github.com/JakeFAU/analytica/internal/social"
	"github.com/JakeFAU/analytica/internal/storage"
	memoryStorage "github.com/JakeFAU/analytica/internal/storage/memory"
	pgstore "github.com/JakeFAU/analytica/internal/storage/postgres"
	"github.com/JakeFAU/analytica/internal/store"
	"github.com/JakeFAU/analytica/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	sessions  *session.Manager
	registry  *classifier.Registry
	stage     *preprocess.Stage
	pipeline  *pipeline.Pipeline
	runs      store.RunRepository
	queue     *queueMemory.Queue
	dispatch  *dispatcher.Dispatcher
	scheduler *scheduler.Scheduler
	apiServer *api.Server

	// closers run in reverse order on Close.
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Build creates the application's dependencies. Nothing touches the network
// except the optional Postgres, Redis and Pub/Sub connections.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("platform", cfg.Platform.BaseURL),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	if err := a.build(ctx); err != nil {
		if cerr := a.Close(context.Background()); cerr != nil {
			logger.Warn("cleanup after failed build", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	hasher := sha256.New()
	clock := system.New()
	ids := uuid.New()

	var err error
	a.sessions, err = a.setupSessions()
	if err != nil {
		return err
	}

	coll, err := a.setupCollector(hasher)
	if err != nil {
		return err
	}

	var closeStage func() error
	a.stage, closeStage, err = NewPreprocessStage(ctx, a.cfg, hasher, a.logger)
	if err != nil {
		return err
	}
	a.addCloser("redis", closeStage)

	a.registry = NewClassifierRegistry(a.cfg, a.logger)

	posts, err := a.setupDatabase(ctx)
	if err != nil {
		return err
	}

	blobs, closeBlobs, err := storage.Open(ctx, storage.Config{
		Backend: a.cfg.Storage.Backend,
		BaseDir: a.cfg.Storage.BaseDir,
		Bucket:  a.cfg.Storage.GCSBucket,
		Prefix:  a.cfg.Storage.Prefix,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("archive storage init failed: %w", err)
	}
	a.addCloser("archive storage", closeBlobs)
	if blobs == nil {
		a.logger.Info("run archiving disabled")
	}

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Sessions:   a.sessions,
		Collector:  coll,
		Preprocess: a.stage,
		Classifier: a.registry,
		Posts:      posts,
		Runs:       a.runs,
		Blobs:      blobs,
		Publisher:  publisher,
		IDs:        ids,
		Clock:      clock,
	}, pipeline.Config{
		CollectTimeout:      a.cfg.Pipeline.CollectTimeout,
		ClassifyConcurrency: a.cfg.Pipeline.ClassifyConcurrency,
		DefaultLimit:        a.cfg.Collector.DefaultLimit,
		Topic:               a.cfg.PubSub.TopicName,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.queue = queueMemory.NewQueue(a.cfg.Scheduler.QueueDepth)
	workers := make([]*worker.Worker, 0, a.cfg.Scheduler.Concurrency)
	for i := 0; i < a.cfg.Scheduler.Concurrency; i++ {
		workers = append(workers, worker.New(i, a.queue, a.pipeline, workerConfig(a.cfg), a.logger))
	}
	a.dispatch = dispatcher.New(a.queue, workers, ids, clock, a.cfg.Collector.DefaultLimit)
	a.logger.Info("dispatcher configured",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", a.cfg.Scheduler.QueueDepth),
		zap.Duration("job_timeout", a.cfg.Scheduler.JobTimeout),
	)

	if err := a.setupScheduler(); err != nil {
		return err
	}

	deps := api.Deps{
		Runs:      a.runs,
		Submitter: a.dispatch,
		Sessions:  a.sessions,
		Models:    a.registry,
	}
	if a.scheduler != nil {
		deps.Schedule = a.scheduler
	}
	a.apiServer = api.NewServer(deps, a.cfg, a.logger)
	return nil
}

func (a *App) setupSessions() (*session.Manager, error) {
	launcher, err := headless.NewLauncher(headless.Config{
		Headless:       a.cfg.Browser.Headless,
		UserAgent:      a.cfg.Browser.UserAgent,
		ExecPath:       a.cfg.Browser.ExecPath,
		MaxTabs:        a.cfg.Browser.MaxTabs,
		OpTimeout:      a.cfg.Browser.OpTimeout,
		ProbeTimeout:   a.cfg.Browser.ProbeTimeout,
		StartupTimeout: a.cfg.Browser.StartupTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("browser launcher init failed: %w", err)
	}
	sessCfg := session.DefaultConfig(a.cfg.Platform.BaseURL)
	if a.cfg.Platform.LoginURL != "" {
		sessCfg.LoginURL = a.cfg.Platform.LoginURL
	}
	sessCfg.SettleDelay = a.cfg.Browser.SettleDelay

	creds := a.cfg.Credentials()
	mgr, err := session.NewManager(launcher, creds, sessCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("session manager init failed: %w", err)
	}
	a.addCloser("session manager", mgr.Close)
	a.logger.Info("session manager configured",
		zap.Object("credentials", creds),
		zap.String("login_url", sessCfg.LoginURL),
		zap.Bool("headless", a.cfg.Browser.Headless),
	)
	return mgr, nil
}

func (a *App) setupCollector(hasher social.Hasher) (*collector.Collector, error) {
	var limiter collector.Waiter
	if a.cfg.Collector.NavigationsPerMinute > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.Collector.NavigationsPerMinute / 60,
			Burst: 1,
		})
		a.logger.Info("navigation pacing enabled",
			zap.Float64("navigations_per_minute", a.cfg.Collector.NavigationsPerMinute))
	} else {
		limiter = simple.New()
		a.logger.Info("navigation pacing disabled, using simple policy")
	}
	coll, err := collector.New(collector.Config{
		BaseURL:     a.cfg.Platform.BaseURL,
		Window:      a.cfg.Collector.Window,
		MaxStagnant: a.cfg.Collector.MaxStagnation,
		ScrollStep:  a.cfg.Collector.ScrollStep,
		SettleDelay: a.cfg.Collector.ScrollSettle,
		NavSettle:   a.cfg.Collector.NavSettle,
	}, hasher, limiter, a.logger)
	if err != nil {
		return nil, fmt.Errorf("collector init failed: %w", err)
	}
	return coll, nil
}

// NewPreprocessStage builds language detection plus the optional translator,
// cached in Redis when redis.addr is set. The returned func closes the cache client.
func NewPreprocessStage(
	ctx context.Context,
	cfg config.Config,
	hasher social.Hasher,
	logger *zap.Logger,
) (*preprocess.Stage, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}
	detector := preprocess.NewDetector(cfg.Preprocess.MinConfidence)
	stageCfg := preprocess.Config{TargetLanguage: cfg.Preprocess.TargetLanguage}
	if !cfg.Translate.Enabled {
		logger.Info("translation disabled")
		return preprocess.NewStage(detector, nil, stageCfg, logger), noop, nil
	}

	libre, err := preprocess.NewLibreTranslator(preprocess.LibreConfig{
		URL:     cfg.Translate.URL,
		APIKey:  cfg.Translate.APIKey,
		Timeout: cfg.Translate.Timeout,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("translator init failed: %w", err)
	}
	var translator preprocess.Translator = libre
	closer := noop
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("translation cache unreachable, continuing without it",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		translator = preprocess.NewCachedTranslator(libre, rdb, hasher, cfg.Translate.CacheTTL, logger)
		closer = rdb.Close
		logger.Info("translation cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	logger.Info("translation enabled", zap.String("target", cfg.Preprocess.TargetLanguage))
	return preprocess.NewStage(detector, translator, stageCfg, logger), closer, nil
}

// NewClassifierRegistry builds the per-dimension registry over the inference
// sidecars. A misconfigured client leaves every dimension unavailable rather
// than failing startup.
func NewClassifierRegistry(cfg config.Config, logger *zap.Logger) *classifier.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	regCfg := classifier.Config{LoadTimeout: cfg.Inference.LoadTimeout}
	client, err := inference.New(inference.Config{
		TokenizerURL: cfg.Inference.TokenizerURL,
		ModelURL:     cfg.Inference.ModelURL,
		Timeout:      cfg.Inference.Timeout,
		MaxTokens:    cfg.Inference.MaxTokens,
		Models:       cfg.Inference.Models,
	})
	if err != nil {
		logger.Warn("inference client unavailable, labels will be degraded", zap.Error(err))
		return classifier.NewRegistry(nil, regCfg, logger)
	}
	return classifier.NewRegistry(client, regCfg, logger)
}

func (a *App) setupDatabase(ctx context.Context) (social.PostStore, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, keeping posts and runs in memory")
		a.runs = memoryStorage.NewRunStore()
		return memoryStorage.NewPostStore(), nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	a.addCloser("postgres pool", func() error {
		pool.Close()
		return nil
	})
	posts, err := pgstore.NewPostStore(pool, a.cfg.DB.Table)
	if err != nil {
		return nil, fmt.Errorf("post store init failed: %w", err)
	}
	runs, err := pgstore.NewRunStore(pool, "")
	if err != nil {
		return nil, fmt.Errorf("run store init failed: %w", err)
	}
	a.runs = runs
	a.logger.Info("postgres stores initialized", zap.String("table", a.cfg.DB.Table))
	return posts, nil
}

func (a *App) setupPublisher(ctx context.Context) (social.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.addCloser("pubsub publisher", pub.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupScheduler() error {
	if !a.cfg.Scheduler.Enabled {
		a.logger.Info("scheduler disabled")
		return nil
	}
	loc, err := time.LoadLocation(a.cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler timezone: %w", err)
	}
	a.scheduler = scheduler.New(a.dispatch, loc, a.logger)
	for name, job := range a.cfg.StandardJobs {
		if err := a.scheduler.Add(scheduler.Job{
			Name:       name,
			Schedule:   job.Schedule,
			Request:    job.Request(a.cfg.Collector.DefaultLimit),
			Dimensions: job.Dimensions,
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}
	return nil
}

func workerConfig(cfg config.Config) worker.Config {
	return worker.Config{JobTimeout: cfg.Scheduler.JobTimeout}
}

func (a *App) addCloser(name string, fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, namedCloser{name: name, fn: fn})
	}
}

// Pipeline returns the run pipeline for one-shot commands.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Sessions returns the shared browser session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Registry returns the classifier registry.
func (a *App) Registry() *classifier.Registry { return a.registry }

// Runs returns the run ledger.
func (a *App) Runs() store.RunRepository { return a.runs }

// Handler returns the HTTP handler of the ops API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves the API, workers and scheduler until ctx is canceled, then
// drains and shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	if a.scheduler != nil {
		a.scheduler.Start()
		a.logger.Info("scheduler started", zap.Int("jobs", len(a.scheduler.Entries())))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.scheduler != nil {
		a.scheduler.Stop(shutdownCtx)
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not drain before shutdown deadline")
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	return closeErr
}

// Close releases every resource Build acquired, newest first.
func (a *App) Close(_ context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
