package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/ousd-analytics/internal/dune"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Query executions ---

type Execution struct {
	ExecutionID string     `json:"execution_id"`
	QueryID     int64      `json:"query_id"`
	State       string     `json:"state"`
	SubmittedAt time.Time  `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	RowCount    int        `json:"row_count"`
	Error       string     `json:"error,omitempty"`
}

// RecordExecution upserts the latest observed state of an execution.
func (s *Store) RecordExecution(ctx context.Context, rec dune.ExecutionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_executions (execution_id, query_id, state, submitted_at, finished_at, row_count, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (execution_id) DO UPDATE
			SET state = $3, finished_at = $5, row_count = $6, error = $7, updated_at = now()`,
		rec.ExecutionID, rec.QueryID, string(rec.State), rec.SubmittedAt, rec.FinishedAt, rec.RowCount, rec.Error)
	return err
}

// ListExecutions returns the most recent executions, optionally for one query.
func (s *Store) ListExecutions(ctx context.Context, queryID int64, limit int) ([]Execution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, query_id, state, submitted_at, finished_at, row_count, error
		FROM query_executions
		WHERE $1::bigint = 0 OR query_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2`, queryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ExecutionID, &e.QueryID, &e.State, &e.SubmittedAt, &e.FinishedAt, &e.RowCount, &e.Error); err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// --- Chart snapshots ---

// SaveSnapshot stores a JSON-encodable snapshot for source.
func (s *Store) SaveSnapshot(ctx context.Context, source string, fetchedAt time.Time, snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chart_snapshots (source, payload, fetched_at) VALUES ($1, $2, $3)`,
		source, payload, fetchedAt)
	return err
}

// LatestSnapshot decodes the newest snapshot of source into dst.
func (s *Store) LatestSnapshot(ctx context.Context, source string, dst any) error {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload FROM chart_snapshots
		WHERE source = $1
		ORDER BY fetched_at DESC
		LIMIT 1`, source).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dst)
}

// PruneSnapshots deletes snapshots older than maxAge.
func (s *Store) PruneSnapshots(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM chart_snapshots WHERE fetched_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
