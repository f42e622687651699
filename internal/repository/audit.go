package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

const insertAuditLog = `
INSERT INTO audit_log (entity_type, entity_id, action, prev_state, next_state, metadata)
VALUES ($1, $2, $3, $4, $5, $6)`

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	_, err := q.db.Exec(ctx, insertAuditLog,
		arg.EntityType, arg.EntityID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
