package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PersistenceHandler appends every consumed ledger event to ledger_event_log, the audit trail
// of who changed which user's ledger and when.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler returns a handler writing through pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle records msg once per Kafka offset; a redelivered offset is a no-op.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	const stmt = `INSERT INTO ledger_event_log
        (event_type, aggregate_id, user_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
    VALUES ($1, $2, $3::jsonb->>'user_id', $4, $5, $6, $7, $8, $3::jsonb, $9)
    ON CONFLICT (topic, partition, record_offset) DO NOTHING`

	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		return fmt.Errorf("audit %s at offset %d: record has no timestamp", msg.EventType, msg.Offset)
	}
	if _, err := h.pool.Exec(ctx, stmt,
		msg.EventType, msg.AggregateID, []byte(msg.Payload), msg.SchemaID, msg.SchemaSubject,
		msg.Topic, msg.Partition, msg.Offset, receivedAt,
	); err != nil {
		return fmt.Errorf("audit %s at offset %d: %w", msg.EventType, msg.Offset, err)
	}
	return nil
}
