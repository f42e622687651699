package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCommitOutcomeUnknown is returned when COMMIT failed in a way that leaves
// the server-side outcome undetermined, typically a dropped connection.
var ErrCommitOutcomeUnknown = errors.New("transaction commit outcome unknown")

// Store provides access to the queries and transaction scoping.
type Store struct {
	db      *pgxpool.Pool
	queries *Queries
}

// NewStore creates a store wrapper around a pgx connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:      db,
		queries: New(db),
	}
}

// Queries returns the non-transactional query set.
func (s *Store) Queries() Querier {
	return s.queries
}

// RunInTx executes fn within a database transaction. Any error from fn rolls
// the transaction back.
func (s *Store) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if commitOutcomeUnknown(err) {
			return fmt.Errorf("%w: %v", ErrCommitOutcomeUnknown, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// A server error means the server answered and rolled back. A failure pgconn
// marks safe to retry never reached the server.
func commitOutcomeUnknown(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	return !pgconn.SafeToRetry(err)
}
