// Package store is the PostgreSQL implementation of the plan, restaurant,
// temporary upgrade and event stores.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/overlay"
)

const (
	defaultPageSize = 200

	pgUniqueViolation = "23505"
)

// querier is the subset of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement. Store binds it to the pool; WithTenantLock
// binds it to the lock-holding transaction.
type queries struct {
	q querier
}

// Store provides database-backed accessors for entitlement data.
type Store struct {
	queries
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{queries: queries{q: db}, db: db}, nil
}

// WithTenantLock runs fn inside a transaction holding SELECT ... FOR UPDATE
// on the restaurant row. The transaction commits when fn returns nil.
func (s *Store) WithTenantLock(ctx context.Context, tenantID int64, fn func(ctx context.Context, repo overlay.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tenant tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var locked int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM restaurants WHERE id = $1 FOR UPDATE`,
		tenantID,
	).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("restaurant", tenantID)
		}
		return fmt.Errorf("store: lock restaurant %d: %w", tenantID, err)
	}

	if err := fn(ctx, &queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tenant tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func int64Arg(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

var _ overlay.Store = (*Store)(nil)
