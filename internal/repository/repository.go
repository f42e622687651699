package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the data access surface used by the services. Queries
// implements it on Postgres.
type Querier interface {
	InsertClient(ctx context.Context, c *domain.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error)
	GetClientByCPF(ctx context.Context, cpf string) (*domain.Client, error)

	InsertAccountIfAbsent(ctx context.Context, a *domain.Account) (bool, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccountsByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Account, error)
	UpdateAccount(ctx context.Context, a *domain.Account) (int64, error)

	InsertMovement(ctx context.Context, m *domain.MoneyMovement) error
	GetMovement(ctx context.Context, id uuid.UUID) (*domain.MoneyMovement, error)
	GetMovementByRequestKey(ctx context.Context, key string) (*domain.MoneyMovement, error)
	ListMovements(ctx context.Context, limit, offset int32) ([]*domain.MoneyMovement, error)
	ListMovementsForAccount(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*domain.MoneyMovement, error)
	ListMovementsBefore(ctx context.Context, accountID uuid.UUID, before time.Time) ([]*domain.MoneyMovement, error)
	GetLatestMovementBefore(ctx context.Context, accountID uuid.UUID, before time.Time) (*domain.MoneyMovement, error)
	ListBalanceDrifts(ctx context.Context) ([]BalanceDrift, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error

	AllocateSequence(ctx context.Context, name string, floor int64) (int64, error)
	ResetSequence(ctx context.Context, name string, value int64) error
	MaxObservedSequence(ctx context.Context, name string) (int64, error)

	GetIdempotencyKey(ctx context.Context, key string) (*IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (bool, error)
	FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (*IdempotencyKey, error)
	ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) error
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

var _ Querier = (*Queries)(nil)

func ToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func FromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

func pgUUIDPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return ToPgUUID(*id)
}

func uuidPtr(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := FromPgUUID(id)
	return &v
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

func pgTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
