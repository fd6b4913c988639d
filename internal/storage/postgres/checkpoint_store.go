// Package postgres persists crawl checkpoints in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds one row per source.
const DefaultTable = "crawl_checkpoints"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// CheckpointStore implements crawler.CheckpointStore.
//
// Expected schema:
//
//	CREATE TABLE crawl_checkpoints (
//		source         TEXT PRIMARY KEY,
//		cursor         INTEGER NOT NULL,
//		failure_in_row INTEGER NOT NULL,
//		emitted        INTEGER NOT NULL,
//		updated_at     TIMESTAMPTZ NOT NULL
//	);
type CheckpointStore struct {
	pool  pool
	table string
	clock crawler.Clock
}

var _ crawler.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore connects to Postgres using cfg.
func NewCheckpointStore(ctx context.Context, cfg Config, clock crawler.Clock) (*CheckpointStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewCheckpointStoreWithPool(p, cfg.Table, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewCheckpointStoreWithPool builds a store from an existing pool (primarily for testing).
func NewCheckpointStoreWithPool(p pool, table string, clock crawler.Clock) (*CheckpointStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CheckpointStore{pool: p, table: table, clock: clock}, nil
}

// Ping checks the connection.
func (s *CheckpointStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *CheckpointStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load returns the saved state for source. ok is false when none exists.
func (s *CheckpointStore) Load(ctx context.Context, source string) (crawler.State, bool, error) {
	query := fmt.Sprintf(`SELECT cursor, failure_in_row, emitted FROM %s WHERE source = $1`, s.table)
	var state crawler.State
	err := s.pool.QueryRow(ctx, query, source).Scan(&state.Cursor, &state.FailureInRow, &state.Emitted)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.State{}, false, nil
	}
	if err != nil {
		return crawler.State{}, false, fmt.Errorf("load checkpoint %s: %w", source, err)
	}
	return state, true, nil
}

// Save upserts the state for source.
func (s *CheckpointStore) Save(ctx context.Context, source string, state crawler.State) error {
	query := fmt.Sprintf(`
INSERT INTO %s (source, cursor, failure_in_row, emitted, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (source) DO UPDATE
SET cursor = EXCLUDED.cursor,
	failure_in_row = EXCLUDED.failure_in_row,
	emitted = EXCLUDED.emitted,
	updated_at = EXCLUDED.updated_at`, s.table)
	_, err := s.pool.Exec(ctx, query, source, state.Cursor, state.FailureInRow, state.Emitted, s.clock.Now())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", source, err)
	}
	return nil
}

// Clear removes the row for source.
func (s *CheckpointStore) Clear(ctx context.Context, source string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, source); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", source, err)
	}
	return nil
}
