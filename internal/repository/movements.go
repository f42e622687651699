package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ErrDuplicateRequestKey is returned by InsertMovement when another movement
// already holds the request key.
var ErrDuplicateRequestKey = errors.New("movement request key already used")

const requestKeyIndex = "idx_movements_request_key"

const insertMovement = `
INSERT INTO movements (id, tracking_code, source_account_id, destination_account_id, amount, fee,
                       description, status, requested_at, processed_at, request_key)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, NULLIF($11, ''))`

func (q *Queries) InsertMovement(ctx context.Context, m *domain.MoneyMovement) error {
	var fee *string
	if m.Fee != nil {
		s := m.Fee.String()
		fee = &s
	}
	_, err := q.db.Exec(ctx, insertMovement,
		m.ID, m.TrackingCode, pgUUIDPtr(m.SourceAccountID), m.DestinationAccountID,
		m.Amount.String(), fee, m.Description, string(m.Status), m.RequestedAt, pgTime(m.ProcessedAt), m.RequestKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == requestKeyIndex {
			return ErrDuplicateRequestKey
		}
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

const selectMovement = `
SELECT m.id, m.tracking_code, m.source_account_id, m.destination_account_id, m.amount::text,
       m.fee::text, m.description, m.status, m.requested_at, m.processed_at,
       COALESCE(m.request_key, ''), COALESCE(s.account_number, ''), d.account_number
FROM movements m
LEFT JOIN accounts s ON s.id = m.source_account_id
JOIN accounts d ON d.id = m.destination_account_id`

func scanMovement(row pgx.Row) (*domain.MoneyMovement, error) {
	var (
		m         domain.MoneyMovement
		source    pgtype.UUID
		amount    string
		fee       pgtype.Text
		status    string
		processed pgtype.Timestamptz
	)
	if err := row.Scan(&m.ID, &m.TrackingCode, &source, &m.DestinationAccountID, &amount,
		&fee, &m.Description, &status, &m.RequestedAt, &processed,
		&m.RequestKey, &m.SourceAccountNumber, &m.DestinationAccountNumber); err != nil {
		return nil, notFound(err)
	}

	var err error
	if m.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount of movement %s: %w", m.ID, err)
	}
	if fee.Valid {
		f, err := decimal.NewFromString(fee.String)
		if err != nil {
			return nil, fmt.Errorf("parse fee of movement %s: %w", m.ID, err)
		}
		m.Fee = &f
	}
	m.SourceAccountID = uuidPtr(source)
	m.Status = domain.MovementStatus(status)
	m.RequestedAt = m.RequestedAt.UTC()
	m.ProcessedAt = timePtr(processed)
	return &m, nil
}

func (q *Queries) collectMovements(ctx context.Context, sql string, args ...any) ([]*domain.MoneyMovement, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var movements []*domain.MoneyMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (q *Queries) GetMovement(ctx context.Context, id uuid.UUID) (*domain.MoneyMovement, error) {
	return scanMovement(q.db.QueryRow(ctx, selectMovement+` WHERE m.id = $1`, id))
}

// GetMovementByRequestKey finds the movement committed for a client request key.
func (q *Queries) GetMovementByRequestKey(ctx context.Context, key string) (*domain.MoneyMovement, error) {
	return scanMovement(q.db.QueryRow(ctx, selectMovement+` WHERE m.request_key = $1`, key))
}

func (q *Queries) ListMovements(ctx context.Context, limit, offset int32) ([]*domain.MoneyMovement, error) {
	return q.collectMovements(ctx, selectMovement+` ORDER BY m.requested_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

// ListMovementsForAccount returns movements touching accountID requested
// within [from, to], oldest first.
func (q *Queries) ListMovementsForAccount(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*domain.MoneyMovement, error) {
	return q.collectMovements(ctx, selectMovement+`
WHERE (m.source_account_id = $1 OR m.destination_account_id = $1)
  AND m.requested_at >= $2 AND m.requested_at <= $3
ORDER BY m.requested_at`, accountID, from, to)
}

// ListMovementsBefore returns movements touching accountID requested strictly
// before the given instant.
func (q *Queries) ListMovementsBefore(ctx context.Context, accountID uuid.UUID, before time.Time) ([]*domain.MoneyMovement, error) {
	return q.collectMovements(ctx, selectMovement+`
WHERE (m.source_account_id = $1 OR m.destination_account_id = $1)
  AND m.requested_at < $2
ORDER BY m.requested_at`, accountID, before)
}

func (q *Queries) GetLatestMovementBefore(ctx context.Context, accountID uuid.UUID, before time.Time) (*domain.MoneyMovement, error) {
	return scanMovement(q.db.QueryRow(ctx, selectMovement+`
WHERE (m.source_account_id = $1 OR m.destination_account_id = $1)
  AND m.requested_at < $2
ORDER BY m.requested_at DESC
LIMIT 1`, accountID, before))
}

// BalanceDrift is an account whose stored balance disagrees with the replay
// of its opening balance and movements.
type BalanceDrift struct {
	AccountID     uuid.UUID
	AccountNumber string
	Balance       decimal.Decimal
	Expected      decimal.Decimal
}

const listBalanceDrifts = `
WITH credits AS (
    SELECT destination_account_id AS account_id, SUM(amount) AS total
    FROM movements
    WHERE status NOT IN ('CANCELLED', 'FAILED')
    GROUP BY destination_account_id
), debits AS (
    SELECT source_account_id AS account_id, SUM(amount + COALESCE(fee, 0)) AS total
    FROM movements
    WHERE source_account_id IS NOT NULL AND status NOT IN ('CANCELLED', 'FAILED')
    GROUP BY source_account_id
), expected AS (
    SELECT a.id, a.account_number, a.balance,
           a.opening_balance + COALESCE(c.total, 0) - COALESCE(d.total, 0) AS expected
    FROM accounts a
    LEFT JOIN credits c ON c.account_id = a.id
    LEFT JOIN debits d ON d.account_id = a.id
)
SELECT id, account_number, balance::text, expected::text
FROM expected
WHERE balance <> expected
ORDER BY account_number`

func (q *Queries) ListBalanceDrifts(ctx context.Context) ([]BalanceDrift, error) {
	rows, err := q.db.Query(ctx, listBalanceDrifts)
	if err != nil {
		return nil, fmt.Errorf("list balance drifts: %w", err)
	}
	defer rows.Close()

	var drifts []BalanceDrift
	for rows.Next() {
		var (
			d                 BalanceDrift
			balance, expected string
		)
		if err := rows.Scan(&d.AccountID, &d.AccountNumber, &balance, &expected); err != nil {
			return nil, fmt.Errorf("scan balance drift: %w", err)
		}
		if d.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("parse balance: %w", err)
		}
		if d.Expected, err = decimal.NewFromString(expected); err != nil {
			return nil, fmt.Errorf("parse expected balance: %w", err)
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}
