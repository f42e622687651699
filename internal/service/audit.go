package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/google/uuid"
)

const (
	entityAccount  = "account"
	entityMovement = "movement"
)

// AuditService writes immutable audit trail entries.
type AuditService struct{}

func NewAuditService() *AuditService {
	return &AuditService{}
}

// Write stores a single immutable audit record through qtx, so the entry
// commits or rolls back with the change it describes.
func (s *AuditService) Write(ctx context.Context, qtx repository.Querier, entityType string, entityID uuid.UUID, action, prevState, nextState string, metadata map[string]any) error {
	var payload []byte
	if len(metadata) > 0 {
		var err error
		if payload, err = json.Marshal(metadata); err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}

	if err := qtx.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		PrevState:  textParam(prevState),
		NextState:  textParam(nextState),
		Metadata:   payload,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
