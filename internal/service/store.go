package service

import (
	"context"
	"errors"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}

// accountNotFound turns a missing row into the ledger error; anything else
// passes through unchanged.
func accountNotFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Errorf(domain.ErrAccountNotFound, format, args...)
	}
	return err
}
