package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-fulfillment/internal/events"
)

const insertDomainEvent = `INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3::jsonb)
RETURNING id, occurred_at`

// EventStore appends domain events to the outbox table.
type EventStore struct {
	DB DB
}

// InsertEvent persists one event and returns it with its generated id.
func (s EventStore) InsertEvent(ctx context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	var (
		id         pgtype.UUID
		occurredAt time.Time
	)
	if err := s.DB.QueryRow(ctx, insertDomainEvent, topic, aggregateID, string(payload)).Scan(&id, &occurredAt); err != nil {
		return events.Event{}, err
	}
	return events.Event{
		ID:          uuidString(id),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     append([]byte(nil), payload...),
		OccurredAt:  occurredAt,
	}, nil
}
