package service

import (
	"context"
	"fmt"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/repository"
)

// transitionMovement applies one status change to m and records it in the
// audit log within qtx. Re-applying the current status is a no-op.
func transitionMovement(ctx context.Context, qtx repository.Querier, audit *AuditService, m *domain.MoneyMovement, next domain.MovementStatus, action string, apply func() error, metadata map[string]any) error {
	current := m.Status
	if current == next {
		return nil
	}
	if !domain.CanTransition(current, next) {
		return domain.Errorf(domain.ErrInvalidTransition, "invalid movement state transition: %s -> %s", current, next)
	}
	if err := apply(); err != nil {
		return err
	}
	if m.Status != next {
		return fmt.Errorf("movement %s ended in %s, expected %s", m.ID, m.Status, next)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["tracking_code"] = m.TrackingCode
	return audit.Write(ctx, qtx, entityMovement, m.ID, action, string(current), string(next), metadata)
}

// createMovement records the creation of m with its initial status.
func createMovement(ctx context.Context, qtx repository.Querier, audit *AuditService, m *domain.MoneyMovement, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["tracking_code"] = m.TrackingCode
	metadata["kind"] = m.Kind()
	metadata["amount"] = m.Amount.StringFixed(2)
	return audit.Write(ctx, qtx, entityMovement, m.ID, "created", "", string(m.Status), metadata)
}
