// Package postgres persists labeled posts and the run ledger in Postgres.
//
// Expected schema (migrations are managed outside this repo):
//
//	CREATE TABLE posts (
//		platform_id     text        NOT NULL,
//		posted_at       timestamptz NOT NULL,
//		handle          text        NOT NULL,
//		text            text        NOT NULL,
//		language        text        NOT NULL,
//		translated_text text,
//		sentiment       text,
//		toxicity        text,
//		emotion         text,
//		unavailable     text[]      NOT NULL DEFAULT '{}',
//		run_id          text        NOT NULL,
//		collected_at    timestamptz NOT NULL,
//		PRIMARY KEY (platform_id, posted_at)
//	);
//
//	CREATE TABLE collection_runs (
//		id            text PRIMARY KEY,
//		job_name      text,
//		kind          text NOT NULL,
//		target        text NOT NULL,
//		post_limit    int  NOT NULL,
//		recency       text NOT NULL,
//		dimensions    text[] NOT NULL,
//		status        text NOT NULL,
//		collected     int  NOT NULL DEFAULT 0,
//		labeled       int  NOT NULL DEFAULT 0,
//		started_at    timestamptz NOT NULL,
//		finished_at   timestamptz,
//		error_message text
//	);
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Pool is the subset of pgxpool.Pool the stores use. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config controls the shared connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool connects a pgx pool using cfg.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func tableName(name, fallback string) (string, error) {
	if name == "" {
		name = fallback
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}
