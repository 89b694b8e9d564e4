package outbox

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxReasonLen = 1024

// DLQWriter copies events the dispatcher could not publish into outbox_dlq.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter returns a writer backed by pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Write dead-letters msg with reason. The entry is due for its first retry immediately.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	return insertDLQ(ctx, w.pool, msg, reason)
}

// WriteBatch dead-letters messages and marks them published in one transaction, so a
// failure part way through leaves neither DLQ rows nor a published mark behind and the
// next dispatcher pass retries the whole batch.
func (w *DLQWriter) WriteBatch(ctx context.Context, messages []Message, reason string) error {
	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, msg := range messages {
		if err := insertDLQ(ctx, tx, msg, fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)); err != nil {
			return fmt.Errorf("dead-letter event %d: %w", msg.EventID, err)
		}
	}
	if err := markPublished(ctx, tx, messages); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertDLQ(ctx context.Context, db execer, msg Message, reason string) error {
	_, err := db.Exec(ctx,
		`INSERT INTO outbox_dlq
            (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
		msg.EventID, msg.EventType, msg.Topic, []byte(msg.Payload), truncateReason(reason),
		msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
	)
	return err
}

// truncateReason caps broker error text so a chatty failure cannot bloat the table.
func truncateReason(reason string) string {
	if len(reason) <= maxReasonLen {
		return reason
	}
	cut := maxReasonLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut] + "…"
}
