package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/repository"
)

// errBalanceNotPersisted means the row for a locked account vanished between
// the lock and the write. The surrounding transaction must roll back.
var errBalanceNotPersisted = errors.New("account balance not persisted")

// persistBalance writes the balance and status of a locked account.
func persistBalance(ctx context.Context, qtx repository.Querier, account *domain.Account) error {
	rows, err := qtx.UpdateAccount(ctx, account)
	if err != nil {
		return fmt.Errorf("update account %s: %w", account.Number, err)
	}
	if rows != 1 {
		return fmt.Errorf("account %s: %w (%d rows)", account.Number, errBalanceNotPersisted, rows)
	}
	return nil
}
