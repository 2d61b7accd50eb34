// Package db wires the shared Postgres connection pool: pgxpool.New + Ping
// on connect, InitSchema loading a checked-in schema.sql, transactional
// writes for multi-row operations.
package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the shared connection pool. Config, wallet cache, event log,
// and the admin API each hold a *Store
// and issue their own queries against it; Store itself owns no domain logic.
type Store struct {
	Pool *pgxpool.Pool
}

// Connect opens the pool and verifies connectivity with a ping.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("db: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// InitSchema applies the embedded schema. Idempotent: every statement is
// CREATE TABLE IF NOT EXISTS or CREATE INDEX IF NOT EXISTS.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("db: init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.Pool.Close()
}
