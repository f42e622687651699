package service

import (
	"context"
	"fmt"

	"github.com/bmptec/ledger-core/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that every stored balance equals the opening balance plus the
// replay of the account's movements. It returns the number of drifted accounts.
func (s *ReconciliationService) Run(ctx context.Context) (int, error) {
	drifts, err := s.store.Queries().ListBalanceDrifts(ctx)
	if err != nil {
		return 0, fmt.Errorf("run balance drift query: %w", err)
	}

	observability.RecordBalanceDrift(len(drifts))
	if len(drifts) == 0 {
		zap.L().Info("Ledger Balanced")
		return 0, nil
	}

	zap.L().Error("CRITICAL: balance drift detected", zap.Int("accounts", len(drifts)))
	for _, d := range drifts {
		zap.L().Error("account balance drift",
			zap.String("account_id", d.AccountID.String()),
			zap.String("account_number", d.AccountNumber),
			zap.String("balance", d.Balance.StringFixed(2)),
			zap.String("expected", d.Expected.StringFixed(2)))
	}
	return len(drifts), nil
}
