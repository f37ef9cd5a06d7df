package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

const auditEventTypePrefix = "license.audit."

// auditEvent is the payload streamed to the broker for every audit entry.
type auditEvent struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	ActorType  string         `json:"actor_type"`
	ActorID    *string        `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Metadata   map[string]any `json:"metadata"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// recordAudit appends one immutable audit entry and enqueues its outbox event
// in the caller's transaction. It must run after the state mutation it
// describes so a rollback discards both.
func (s *Service) recordAudit(ctx context.Context, tx ports.Tx, actor Actor, action, targetType, targetID string, metadata map[string]any, at time.Time) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if actor.Type == "" {
		actor = SystemActor()
	}
	entry := domain.AuditEntry{
		ID:         newID(),
		ActorType:  actor.Type,
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
		CreatedAt:  at,
	}
	if err := tx.AuditLog().Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	eventType := auditEventTypePrefix + action
	payload, err := json.Marshal(auditEvent{
		EventID:    entry.ID.String(),
		EventType:  eventType,
		ActorType:  string(entry.ActorType),
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Metadata:   entry.Metadata,
		OccurredAt: entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := tx.Outbox().Enqueue(ctx, ports.OutboxEvent{
		EventID:      entry.ID,
		EventType:    eventType,
		PartitionKey: targetID,
		Payload:      payload,
		OccurredAt:   at,
	}); err != nil {
		return fmt.Errorf("enqueue audit event: %w", err)
	}
	return nil
}
