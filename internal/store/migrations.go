package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS query_executions (
    execution_id TEXT PRIMARY KEY,
    query_id BIGINT NOT NULL,
    state TEXT NOT NULL,
    submitted_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    row_count INT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS query_executions_query_idx
    ON query_executions (query_id, submitted_at DESC);

CREATE TABLE IF NOT EXISTS chart_snapshots (
    id BIGSERIAL PRIMARY KEY,
    source TEXT NOT NULL,
    payload JSONB NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chart_snapshots_source_idx
    ON chart_snapshots (source, fetched_at DESC);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
