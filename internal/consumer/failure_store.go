package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FailureStore parks events the handlers could not process in ledger_event_failures, where
// an operator can inspect and replay them.
type FailureStore struct {
	pool *pgxpool.Pool
}

// NewFailureStore returns a FailureStore writing through pool.
func NewFailureStore(pool *pgxpool.Pool) *FailureStore {
	return &FailureStore{pool: pool}
}

// Park implements DeadLetter. Parking the same offset again counts another attempt.
func (s *FailureStore) Park(ctx context.Context, msg Message, cause error) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_event_failures
            (topic, partition, record_offset, event_type, aggregate_id, schema_id, schema_subject, payload, error)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         ON CONFLICT (topic, partition, record_offset)
         DO UPDATE SET error = EXCLUDED.error, attempts = ledger_event_failures.attempts + 1, failed_at = NOW()`,
		msg.Topic, msg.Partition, msg.Offset, msg.EventType, msg.AggregateID,
		msg.SchemaID, msg.SchemaSubject, []byte(msg.Payload), cause.Error(),
	)
	if err != nil {
		return fmt.Errorf("park %s at offset %d: %w", msg.EventType, msg.Offset, err)
	}
	return nil
}
