// Package db provides PostgreSQL access to the work-type catalog.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a PostgreSQL connection pool
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, logger: slog.Default().With("component", "db")}, nil
}

// Close closes the connection pool
func (db *Store) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
