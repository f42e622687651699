// Package events publishes committed money movements to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "ledger.movements"

	TypeMovementCompleted = "movement.completed"
)

// MovementEvent is the wire form of a committed movement.
type MovementEvent struct {
	EventID              uuid.UUID    `json:"event_id"`
	Type                 string       `json:"type"`
	MovementID           uuid.UUID    `json:"movement_id"`
	TrackingCode         string       `json:"tracking_code"`
	Kind                 string       `json:"kind"`
	SourceAccountID      *uuid.UUID   `json:"source_account_id,omitempty"`
	DestinationAccountID uuid.UUID    `json:"destination_account_id"`
	Amount               domain.Money `json:"amount"`
	Fee                  domain.Money `json:"fee"`
	OccurredAt           time.Time    `json:"occurred_at"`
}

// NewMovementEvent describes m after it was committed.
func NewMovementEvent(m *domain.MoneyMovement) MovementEvent {
	occurred := m.RequestedAt
	if m.ProcessedAt != nil {
		occurred = *m.ProcessedAt
	}
	return MovementEvent{
		EventID:              uuid.New(),
		Type:                 TypeMovementCompleted,
		MovementID:           m.ID,
		TrackingCode:         m.TrackingCode,
		Kind:                 m.Kind(),
		SourceAccountID:      m.SourceAccountID,
		DestinationAccountID: m.DestinationAccountID,
		Amount:               domain.NewMoney(m.Amount),
		Fee:                  domain.NewMoney(m.FeeOrZero()),
		OccurredAt:           occurred.UTC(),
	}
}

type Publisher interface {
	PublishMovement(ctx context.Context, event MovementEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishMovement(context.Context, MovementEvent) error { return nil }
func (NopPublisher) Close() error                                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by destination account so that all
// credits of one account land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) PublishMovement(ctx context.Context, event MovementEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal movement event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.DestinationAccountID.String()),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish movement %s: %w", event.MovementID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
