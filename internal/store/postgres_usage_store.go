package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/tpyo/shrinkray/internal/domain"
)

const usageSchemaSQL = `
CREATE TABLE IF NOT EXISTS usage_log (
	id BIGSERIAL PRIMARY KEY,
	path TEXT NOT NULL,
	route TEXT NOT NULL,
	source_bytes BIGINT NOT NULL,
	output_bytes BIGINT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	status INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresUsageStore struct {
	db *sql.DB
}

func NewPostgresUsageStore(ctx context.Context, dsn string) (*PostgresUsageStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresUsageStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresUsageStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, usageSchemaSQL); err != nil {
		return fmt.Errorf("ensure usage schema: %w", err)
	}
	return nil
}

func (s *PostgresUsageStore) Close() error {
	return s.db.Close()
}

func (s *PostgresUsageStore) Record(ctx context.Context, usage domain.Usage) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_log (path, route, source_bytes, output_bytes, pixels_processed, compute_time_ms, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		usage.Path,
		usage.Route,
		usage.SourceBytes,
		usage.OutputBytes,
		usage.PixelsProcessed,
		usage.ComputeTimeMS,
		usage.Status,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage row: %w", err)
	}
	return nil
}
