package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/analytica/internal/social"
	"github.com/JakeFAU/analytica/internal/store"
)

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool  Pool
	table string
}

// NewRunStore wraps pool. table defaults to "collection_runs".
func NewRunStore(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table, "collection_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// StartRun inserts a running row or re-marks an existing one as running.
func (s *RunStore) StartRun(ctx context.Context, run store.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	dims := run.Dimensions
	if dims == nil {
		dims = []string{}
	}
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, job_name, kind, target, post_limit, recency, dimensions, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE %[1]s.status <> EXCLUDED.status;
	`, s.table)
	_, err := s.pool.Exec(ctx, query,
		run.ID,
		nullable(run.JobName),
		string(run.Request.Kind),
		run.Request.Target,
		run.Request.Limit,
		string(run.Request.Recency),
		dims,
		string(store.RunRunning),
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// FinishRun records the terminal status, counters and optional error.
func (s *RunStore) FinishRun(ctx context.Context, runID string, outcome store.RunOutcome) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, status = $2, collected = $3, labeled = $4, error_message = $5
		WHERE id = $6;
	`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		outcome.FinishedAt,
		string(outcome.Status),
		outcome.Collected,
		outcome.Labeled,
		outcome.ErrorMessage,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, job_name, kind, target, post_limit, recency, dimensions, status,
	collected, labeled, started_at, finished_at, error_message`

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (store.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1;`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`, runColumns, s.table)
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run              store.Run
		jobName          *string
		kind, recency    string
		status           string
		limit            int
		collected, label int
	)
	err := row.Scan(
		&run.ID,
		&jobName,
		&kind,
		&run.Request.Target,
		&limit,
		&recency,
		&run.Dimensions,
		&status,
		&collected,
		&label,
		&run.StartedAt,
		&run.FinishedAt,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err //nolint:wrapcheck // callers wrap with context
	}
	if jobName != nil {
		run.JobName = *jobName
	}
	run.Request.Kind = social.TargetKind(kind)
	run.Request.Recency = social.Recency(recency)
	run.Request.Limit = limit
	run.Status = store.RunStatus(status)
	run.Collected = collected
	run.Labeled = label
	return run, nil
}
