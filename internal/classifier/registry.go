package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/metrics"
)

// Config controls instance construction.
type Config struct {
	// LoadTimeout bounds a single construction; it is not tied to the caller's context.
	LoadTimeout time.Duration
}

type entry struct {
	mu   sync.Mutex
	done bool
	inst *Instance
	err  error
}

// Registry owns one lazily built Instance per dimension.
type Registry struct {
	loader  Loader
	cfg     Config
	logger  *zap.Logger
	entries map[Dimension]*entry
}

// NewRegistry creates a Registry. Nothing is loaded until first use or Warm.
func NewRegistry(loader Loader, cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 2 * time.Minute
	}
	entries := make(map[Dimension]*entry, len(labelSets))
	for d := range labelSets {
		entries[d] = &entry{}
	}
	return &Registry{loader: loader, cfg: cfg, logger: logger, entries: entries}
}

// Get returns the instance for d, building it on first call.
// Concurrent first calls block on the same construction.
func (r *Registry) Get(ctx context.Context, d Dimension) (*Instance, error) {
	e, ok := r.entries[d]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDimension, d)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.done {
		e.inst, e.err = r.build(ctx, d)
		e.done = true
	}
	if e.err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, d, e.err)
	}
	return e.inst, nil
}

func (r *Registry) build(ctx context.Context, d Dimension) (*Instance, error) {
	if r.loader == nil {
		metrics.ObserveModelLoad(string(d), "failed")
		return nil, errors.New("no model loader configured")
	}
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.LoadTimeout)
	defer cancel()

	start := time.Now()
	tok, model, err := r.loader.Load(loadCtx, d)
	if err == nil {
		var inst *Instance
		inst, err = NewInstance(d, tok, model)
		if err == nil {
			metrics.ObserveModelLoad(string(d), "loaded")
			r.logger.Info("classifier ready",
				zap.String("dimension", string(d)),
				zap.Duration("load_time", time.Since(start)),
			)
			return inst, nil
		}
	}
	metrics.ObserveModelLoad(string(d), "failed")
	r.logger.Error("classifier load failed",
		zap.String("dimension", string(d)),
		zap.Error(err),
	)
	return nil, fmt.Errorf("load %s: %w", d, err)
}

// Classify returns the label for text along d.
// Empty input yields UnknownLabel without constructing or invoking any model.
func (r *Registry) Classify(ctx context.Context, d Dimension, text string) (string, error) {
	if _, ok := r.entries[d]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownDimension, d)
	}
	if isBlank(text) {
		return UnknownLabel, nil
	}
	inst, err := r.Get(ctx, d)
	if err != nil {
		return "", err
	}
	label, err := inst.Classify(ctx, text)
	if err != nil {
		return "", err
	}
	metrics.ObserveClassification(string(d), label)
	return label, nil
}

// Warm builds the given dimensions up front and returns the joined failures.
func (r *Registry) Warm(ctx context.Context, dims ...Dimension) error {
	if len(dims) == 0 {
		dims = All()
	}
	var errs []error
	for _, d := range dims {
		if _, err := r.Get(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ready reports whether d has been built successfully.
func (r *Registry) Ready(d Dimension) bool {
	e, ok := r.entries[d]
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done && e.err == nil
}

// Status reports, per dimension, "ready", "unavailable" or "pending".
func (r *Registry) Status() map[Dimension]string {
	out := make(map[Dimension]string, len(r.entries))
	for d, e := range r.entries {
		e.mu.Lock()
		switch {
		case !e.done:
			out[d] = "pending"
		case e.err != nil:
			out[d] = "unavailable"
		default:
			out[d] = "ready"
		}
		e.mu.Unlock()
	}
	return out
}
