package hotstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitals-systems/siphon/pkg/types"
)

// Store is a Postgres-backed hot store for recent samples.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new hot store and verifies the connection.
func New(ctx context.Context, cfg types.HotStoreConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("hot store dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("hot store connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("hot store ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate runs the schema DDL to create tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("hot store migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
