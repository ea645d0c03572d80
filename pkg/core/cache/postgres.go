package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_cache (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	written_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps entries in a pipeline_cache table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL not set")
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates the table if it does not exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create pipeline_cache: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	e := Entry{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT value, written_at FROM pipeline_cache WHERE key = $1`, key,
	).Scan(&e.Value, &e.WrittenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Put is a single upsert; the last writer wins.
func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_cache (key, value, written_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, written_at = EXCLUDED.written_at`,
		e.Key, e.Value, e.WrittenAt,
	)
	return err
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pipeline_cache`)
	return err
}
