// Package scheduler submits configured standard jobs on their cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/social"
)

const submitTimeout = 10 * time.Second

// Submitter queues a job and returns its ID.
type Submitter interface {
	Submit(ctx context.Context, name string, req social.Request, dims []string) (string, error)
}

// Job is one scheduled standard job.
type Job struct {
	Name       string
	Schedule   string
	Request    social.Request
	Dimensions []string
}

// Entry describes a registered job.
type Entry struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
}

// Scheduler wraps a robfig cron instance.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	submit Submitter
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]registered
}

type registered struct {
	id  cron.EntryID
	job Job
}

// New builds a stopped Scheduler evaluating schedules in loc (UTC when nil).
func New(submit Submitter, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.Named("scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger: logger}),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger})),
		),
		loc:     loc,
		submit:  submit,
		logger:  logger,
		entries: make(map[string]registered),
	}
}

// Add registers job. Jobs without a schedule are ignored; names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Schedule == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.Name]; ok {
		return fmt.Errorf("job %q already scheduled", job.Name)
	}
	id, err := s.cron.AddFunc(job.Schedule, func() { s.fire(job) })
	if err != nil {
		return fmt.Errorf("schedule %q for %s: %w", job.Schedule, job.Name, err)
	}
	s.entries[job.Name] = registered{id: id, job: job}
	s.logger.Info("job scheduled", zap.String("name", job.Name), zap.String("schedule", job.Schedule))
	return nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight submit or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Entries lists registered jobs ordered by name. Before Start, Next is
// computed from the schedule.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, reg := range s.entries {
		e := s.cron.Entry(reg.id)
		next := e.Next
		if next.IsZero() && e.Schedule != nil {
			next = e.Schedule.Next(time.Now().In(s.loc))
		}
		out = append(out, Entry{Name: name, Schedule: reg.job.Schedule, Next: next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) fire(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	id, err := s.submit.Submit(ctx, job.Name, job.Request, job.Dimensions)
	if err != nil {
		s.logger.Error("scheduled submit failed", zap.String("name", job.Name), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job queued", zap.String("name", job.Name), zap.String("job_id", id))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
