// Package postgres provides PostgreSQL-based implementations of the store interfaces.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"redline-go/internal/config"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, cfg *config.PostgresConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// schema creates the dead-letter archive. Rows are keyed by the encoded
// message key so archiving the same message twice keeps one row.
const schema = `
	CREATE TABLE IF NOT EXISTS dead_letters (
		message_key VARCHAR(512) PRIMARY KEY,
		message_id VARCHAR(255) NOT NULL,
		segment VARCHAR(255) NOT NULL DEFAULT '',
		payload JSONB NOT NULL,
		requeue_count INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL,
		archived_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dead_letters_segment ON dead_letters(segment);
	CREATE INDEX IF NOT EXISTS idx_dead_letters_archived_at ON dead_letters(archived_at DESC);
`

// RunMigrations creates the required database tables.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
