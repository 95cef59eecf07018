package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/analytica/internal/social"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	names []string
	reqs  []social.Request
	err   error
}

func (r *recordingSubmitter) Submit(_ context.Context, name string, req social.Request, _ []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.names = append(r.names, name)
	r.reqs = append(r.reqs, req)
	return "job-" + name, nil
}

func TestAddValidatesSchedules(t *testing.T) {
	t.Parallel()

	s := New(&recordingSubmitter{}, nil, zap.NewNop())
	require.NoError(t, s.Add(Job{Name: "nasa", Schedule: "0 6 * * *"}))
	require.NoError(t, s.Add(Job{Name: "on-demand"}))
	require.Error(t, s.Add(Job{Name: "bad", Schedule: "every morning"}))
	require.ErrorContains(t, s.Add(Job{Name: "nasa", Schedule: "@hourly"}), "already scheduled")

	entries := s.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "nasa", entries[0].Name)
}

func TestEntriesReportNextRun(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	s := New(&recordingSubmitter{}, loc, zap.NewNop())
	require.NoError(t, s.Add(Job{Name: "b", Schedule: "@daily"}))
	require.NoError(t, s.Add(Job{Name: "a", Schedule: "@hourly"}))
	s.Start()
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool {
		entries := s.Entries()
		return len(entries) == 2 && !entries[0].Next.IsZero() && !entries[1].Next.IsZero()
	}, time.Second, 10*time.Millisecond)
	entries := s.Entries()
	require.Equal(t, "a", entries[0].Name)
	require.True(t, entries[0].Next.After(time.Now()))
}

func TestFireSubmitsJob(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	s := New(sub, nil, zap.NewNop())
	req := social.Request{Kind: social.TargetProfile, Target: "nasa", Limit: 10}
	s.fire(Job{Name: "nasa", Schedule: "@hourly", Request: req})

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Equal(t, []string{"nasa"}, sub.names)
	require.Equal(t, req, sub.reqs[0])
}

func TestFireLogsSubmitFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	s := New(&recordingSubmitter{err: errors.New("queue full")}, nil, zap.New(core))
	s.fire(Job{Name: "nasa"})

	failed := logs.FilterMessage("scheduled submit failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, "nasa", failed[0].ContextMap()["name"])
}

func TestCronLoggerAdapter(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := cronLogger{logger: zap.New(core)}
	l.Info("start", "entries", 2)
	l.Error(errors.New("panic"), "job failed", "entry", 1)

	all := logs.All()
	require.Len(t, all, 2)
	require.Equal(t, "cron: start", all[0].Message)
	require.EqualValues(t, 2, all[0].ContextMap()["entries"])
	require.Equal(t, zapcore.ErrorLevel, all[1].Level)
	require.Equal(t, "panic", all[1].ContextMap()["error"])
}
