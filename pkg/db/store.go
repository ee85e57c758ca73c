package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/modules-manager/pkg/host"
)

const storeLogPrefix = "db:store"

// Store is a host.Store backed by the module_store table.
type Store struct {
	pool *pgxpool.Pool
}

var _ host.Store = (*Store)(nil)

// NewStore creates a Store on pool. Migrations must have been applied.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the value under key or host.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM module_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, host.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s - get %s: %w", storeLogPrefix, key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO module_store (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("%s - set %s: %w", storeLogPrefix, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM module_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%s - delete %s: %w", storeLogPrefix, key, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Count returns the number of stored keys.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM module_store`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s - count: %w", storeLogPrefix, err)
	}
	return n, nil
}
