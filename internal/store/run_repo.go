package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/analytica/internal/social"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the collection_runs status column.
type RunStatus string

// Run statuses persisted in collection_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	// RunPartial marks a run cut short by its deadline that still stored posts.
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// ParseRunStatus accepts the persisted status names.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch st := RunStatus(s); st {
	case RunRunning, RunSuccess, RunPartial, RunError:
		return st, true
	default:
		return "", false
	}
}

// Run is one pipeline execution.
type Run struct {
	ID string `json:"id"`
	// JobName is the standard job that triggered the run, empty for ad-hoc runs.
	JobName    string         `json:"job_name,omitempty"`
	Request    social.Request `json:"request"`
	Dimensions []string       `json:"dimensions"`
	Status     RunStatus      `json:"status"`
	Collected  int            `json:"collected"`
	Labeled    int            `json:"labeled"`
	StartedAt  time.Time      `json:"started_at"`
	// FinishedAt is nil while the run is in flight.
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// RunOutcome is what FinishRun records.
type RunOutcome struct {
	Status       RunStatus
	Collected    int
	Labeled      int
	FinishedAt   time.Time
	ErrorMessage *string
}

// RunRepository persists the run ledger.
type RunRepository interface {
	// StartRun inserts (or idempotently re-marks) a running row.
	StartRun(ctx context.Context, run Run) error
	// FinishRun records the terminal status and counters.
	FinishRun(ctx context.Context, runID string, outcome RunOutcome) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID string) (Run, error)
	// ListRuns returns runs newest first, filtered by an optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
