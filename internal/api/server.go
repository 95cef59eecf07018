// Package api exposes the operational HTTP interface for the analytica service.
package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/config"
	"github.com/JakeFAU/analytica/internal/metrics"
	"github.com/JakeFAU/analytica/internal/scheduler"
	"github.com/JakeFAU/analytica/internal/session"
	"github.com/JakeFAU/analytica/internal/social"
	"github.com/JakeFAU/analytica/internal/store"
)

const (
	requestTimeout = 60 * time.Second
	probeTimeout   = 5 * time.Second
)

// Submitter queues collection jobs.
type Submitter interface {
	Submit(ctx context.Context, name string, req social.Request, dims []string) (string, error)
}

// SessionProber reports on the shared browser session.
type SessionProber interface {
	State() session.State
	Probe(ctx context.Context) error
}

// ModelStatus reports classifier readiness per dimension.
type ModelStatus interface {
	Status() map[classifier.Dimension]string
}

// ScheduleLister lists scheduled standard jobs.
type ScheduleLister interface {
	Entries() []scheduler.Entry
}

// Deps are the collaborators behind the routes. Any of them may be nil, in
// which case the matching routes answer 503.
type Deps struct {
	Runs      store.RunRepository
	Submitter Submitter
	Sessions  SessionProber
	Models    ModelStatus
	Schedule  ScheduleLister
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router chi.Router
	deps   Deps
	runs   *RunHandler
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	s := &Server{
		deps:   deps,
		runs:   NewRunHandler(deps.Runs, logger),
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitCustomJob)
			r.Post("/standard", s.submitStandardJob)
			r.Get("/standard", s.listStandardJobs)
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.runs.ListRuns)
			r.Get("/{run_id}", s.runs.GetRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports the session and model state. Only a session that exists but
// no longer answers makes the service unready; models load lazily and an
// unavailable model degrades runs instead of failing them.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ready"}
	status := http.StatusOK

	if s.deps.Sessions != nil {
		state := s.deps.Sessions.State()
		sess := map[string]string{"state": state.String()}
		if state == session.StateActive {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			err := s.deps.Sessions.Probe(ctx)
			cancel()
			if err != nil {
				sess["error"] = err.Error()
				status = http.StatusServiceUnavailable
				body["status"] = "unready"
			}
		}
		body["session"] = sess
	}
	if s.deps.Models != nil {
		models := make(map[string]string)
		for d, st := range s.deps.Models.Status() {
			models[string(d)] = st
		}
		body["models"] = models
	}
	writeJSON(w, status, body)
}

type customJobRequest struct {
	Kind       social.TargetKind `json:"kind"`
	Target     string            `json:"target"`
	Limit      int               `json:"limit"`
	Recency    social.Recency    `json:"recency"`
	Dimensions []string          `json:"dimensions"`
}

type standardJobRequest struct {
	Name string `json:"name"`
}

func (s *Server) submitCustomJob(w http.ResponseWriter, r *http.Request) {
	var req customJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.enqueue(w, r, "", social.Request{
		Kind:    req.Kind,
		Target:  req.Target,
		Limit:   req.Limit,
		Recency: req.Recency,
	}, req.Dimensions)
}

func (s *Server) submitStandardJob(w http.ResponseWriter, r *http.Request) {
	var req standardJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing job name")
		return
	}
	job, ok := s.cfg.StandardJobs[req.Name]
	if !ok {
		writeError(w, http.StatusNotFound, "standard job not found")
		return
	}
	s.enqueue(w, r, req.Name, job.Request(s.cfg.Collector.DefaultLimit), job.Dimensions)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, name string, req social.Request, dims []string) {
	if s.deps.Submitter == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue unavailable")
		return
	}
	jobID, err := s.deps.Submitter.Submit(r.Context(), name, req, dims)
	if err != nil {
		switch {
		case errors.Is(err, social.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "job queue is full")
		default:
			s.logger.Error("enqueue job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

type standardJobDTO struct {
	Name       string            `json:"name"`
	Kind       social.TargetKind `json:"kind"`
	Target     string            `json:"target"`
	Limit      int               `json:"limit"`
	Recency    social.Recency    `json:"recency"`
	Dimensions []string          `json:"dimensions,omitempty"`
	Schedule   string            `json:"schedule,omitempty"`
	NextRun    *time.Time        `json:"next_run,omitempty"`
}

func (s *Server) listStandardJobs(w http.ResponseWriter, _ *http.Request) {
	next := map[string]time.Time{}
	if s.deps.Schedule != nil {
		for _, e := range s.deps.Schedule.Entries() {
			next[e.Name] = e.Next
		}
	}
	out := make([]standardJobDTO, 0, len(s.cfg.StandardJobs))
	for name, job := range s.cfg.StandardJobs {
		req := job.Request(s.cfg.Collector.DefaultLimit)
		dto := standardJobDTO{
			Name:       name,
			Kind:       req.Kind,
			Target:     req.Target,
			Limit:      req.Limit,
			Recency:    req.Recency,
			Dimensions: job.Dimensions,
			Schedule:   job.Schedule,
		}
		if t, ok := next[name]; ok && !t.IsZero() {
			dto.NextRun = &t
		}
		out = append(out, dto)
	}
	sortJobs(out)
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func sortJobs(jobs []standardJobDTO) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", requestID(r.Context())),
						zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
