// Package storage persists the catalog, job bookkeeping and analytics in
// PostgreSQL and coordinates runs through Redis.
package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrDuplicateHash is returned when an opportunity's content hash is
	// already indexed
	ErrDuplicateHash = errors.New("duplicate content hash")
)

const uniqueViolation = "23505"

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// Postgres implements the repositories the pipeline needs
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
