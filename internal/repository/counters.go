package repository

import (
	"context"
	"fmt"

	"github.com/bmptec/ledger-core/internal/domain"
)

const allocateSequence = `
INSERT INTO sequence_counters (name, value, updated_at)
VALUES ($1, GREATEST($2::bigint, 1), NOW())
ON CONFLICT (name) DO UPDATE
SET value = GREATEST(sequence_counters.value + 1, $2::bigint), updated_at = NOW()
RETURNING value`

// AllocateSequence advances the named counter and returns the new value,
// never less than floor.
func (q *Queries) AllocateSequence(ctx context.Context, name string, floor int64) (int64, error) {
	var value int64
	if err := q.db.QueryRow(ctx, allocateSequence, name, floor).Scan(&value); err != nil {
		return 0, fmt.Errorf("allocate %s sequence: %w", name, err)
	}
	return value, nil
}

const resetSequence = `
INSERT INTO sequence_counters (name, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE
SET value = EXCLUDED.value, updated_at = NOW()`

func (q *Queries) ResetSequence(ctx context.Context, name string, value int64) error {
	if _, err := q.db.Exec(ctx, resetSequence, name, value); err != nil {
		return fmt.Errorf("reset %s sequence: %w", name, err)
	}
	return nil
}

const (
	maxAccountSequence = `
SELECT COALESCE(MAX(split_part(account_number, '-', 1)::bigint), 0)
FROM accounts
WHERE account_number ~ '^[0-9]+-[0-9]$'`

	maxTransferSequence = `
SELECT COALESCE(MAX(split_part(tracking_code, '-', 3)::bigint), 0)
FROM movements
WHERE tracking_code ~ '^[A-Z]+-[0-9]{8}-[0-9]+$'`
)

// MaxObservedSequence derives the highest value already handed out for a
// counter from the rows that carry it. Unknown counters report zero.
func (q *Queries) MaxObservedSequence(ctx context.Context, name string) (int64, error) {
	var sql string
	switch name {
	case domain.CounterAccount:
		sql = maxAccountSequence
	case domain.CounterTransfer:
		sql = maxTransferSequence
	default:
		return 0, nil
	}

	var value int64
	if err := q.db.QueryRow(ctx, sql).Scan(&value); err != nil {
		return 0, fmt.Errorf("max observed %s sequence: %w", name, err)
	}
	return value, nil
}

// CounterStore exposes the sequence counter queries to the allocator.
type CounterStore struct {
	q Querier
}

func NewCounterStore(q Querier) *CounterStore {
	return &CounterStore{q: q}
}

func (s *CounterStore) Allocate(ctx context.Context, name string, floor int64) (int64, error) {
	return s.q.AllocateSequence(ctx, name, floor)
}

func (s *CounterStore) Reset(ctx context.Context, name string, value int64) error {
	return s.q.ResetSequence(ctx, name, value)
}

func (s *CounterStore) MaxObserved(ctx context.Context, name string) (int64, error) {
	return s.q.MaxObservedSequence(ctx, name)
}
