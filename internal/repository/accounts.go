package repository

import (
	"context"
	"fmt"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const insertClient = `
INSERT INTO clients (id, name, cpf, email, birth_date, phone, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (q *Queries) InsertClient(ctx context.Context, c *domain.Client) error {
	_, err := q.db.Exec(ctx, insertClient,
		c.ID, c.Name, c.CPF, c.Email, c.BirthDate, c.Phone, c.Active, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

const selectClient = `
SELECT id, name, cpf, email, birth_date, phone, active, created_at
FROM clients`

func scanClient(row pgx.Row) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(&c.ID, &c.Name, &c.CPF, &c.Email, &c.BirthDate, &c.Phone, &c.Active, &c.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (q *Queries) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	return scanClient(q.db.QueryRow(ctx, selectClient+` WHERE id = $1`, id))
}

func (q *Queries) GetClientByCPF(ctx context.Context, cpf string) (*domain.Client, error) {
	return scanClient(q.db.QueryRow(ctx, selectClient+` WHERE cpf = $1`, cpf))
}

const insertAccountIfAbsent = `
INSERT INTO accounts (id, client_id, account_number, branch, kind, balance, opening_balance, status, opened_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
ON CONFLICT (account_number) DO NOTHING`

// InsertAccountIfAbsent reports false when the account number is taken.
func (q *Queries) InsertAccountIfAbsent(ctx context.Context, a *domain.Account) (bool, error) {
	tag, err := q.db.Exec(ctx, insertAccountIfAbsent,
		a.ID, a.ClientID, a.Number, a.Branch, string(a.Kind),
		a.Balance.String(), a.OpeningBalance.String(), string(a.Status), a.OpenedAt)
	if err != nil {
		return false, fmt.Errorf("insert account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const selectAccount = `
SELECT a.id, a.client_id, a.account_number, a.branch, a.kind, a.balance::text,
       a.opening_balance::text, a.status, a.opened_at, a.closed_at, c.name
FROM accounts a
JOIN clients c ON c.id = a.client_id`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a        domain.Account
		kind     string
		status   string
		balance  string
		opening  string
		closedAt pgtype.Timestamptz
	)
	if err := row.Scan(&a.ID, &a.ClientID, &a.Number, &a.Branch, &kind, &balance,
		&opening, &status, &a.OpenedAt, &closedAt, &a.HolderName); err != nil {
		return nil, notFound(err)
	}

	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance of account %s: %w", a.ID, err)
	}
	if a.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return nil, fmt.Errorf("parse opening balance of account %s: %w", a.ID, err)
	}
	if a.Status, err = domain.ParseAccountStatus(status); err != nil {
		return nil, err
	}
	a.Kind = domain.AccountKind(kind)
	a.OpenedAt = a.OpenedAt.UTC()
	a.ClosedAt = timePtr(closedAt)
	return &a, nil
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, selectAccount+` WHERE a.id = $1`, id))
}

// GetAccountForUpdate locks the account row until the transaction ends.
func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, selectAccount+` WHERE a.id = $1 FOR UPDATE OF a`, id))
}

func (q *Queries) ListAccountsByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Account, error) {
	rows, err := q.db.Query(ctx, selectAccount+` WHERE a.client_id = $1 ORDER BY a.opened_at`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const updateAccount = `
UPDATE accounts
SET balance = $2::numeric, status = $3, closed_at = $4
WHERE id = $1`

// UpdateAccount persists the mutable state of a: balance, status and closing time.
func (q *Queries) UpdateAccount(ctx context.Context, a *domain.Account) (int64, error) {
	tag, err := q.db.Exec(ctx, updateAccount, a.ID, a.Balance.String(), string(a.Status), pgTime(a.ClosedAt))
	if err != nil {
		return 0, fmt.Errorf("update account: %w", err)
	}
	return tag.RowsAffected(), nil
}
