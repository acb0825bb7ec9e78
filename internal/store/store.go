// Package store implements the Postgres-backed stores for listings,
// alerts, notifications and match runs. All SQL lives inline against a
// pgxpool; the engine packages consume it through their own narrow
// interfaces.
package store

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = fmt.Errorf("not found")

// Store bundles all repositories over one connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over a connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
