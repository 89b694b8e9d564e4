package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQManager replays ledger events that the dispatcher could not publish. Entries that keep
// failing are quarantined for an operator.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager returns a manager that quarantines an entry after maxRetries failed requeues
// and backs off from baseDelay. Non-positive values fall back to 5 and one minute.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// RunOnce handles up to batchSize due entries, oldest first, and returns how many went back
// into the outbox. Per-entry failures are joined into the returned error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.due(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	var errs []error
	for _, entry := range entries {
		ok, err := m.handleEntry(ctx, entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, err))
			continue
		}
		if ok {
			requeued++
		}
	}
	updateBacklogGauge(ctx, m.pool)
	return requeued, errors.Join(errs...)
}

// due selects the entries whose retry time has come, oldest first.
func (m *DLQManager) due(ctx context.Context, limit int) ([]dlqEntry, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
           FROM outbox_dlq
          WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY created_at
          LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
}

// handleEntry quarantines an exhausted entry or moves it back into the outbox. A failed
// requeue pushes next_retry_at out by the backoff delay. It reports whether the entry was requeued.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	if entry.RetryCount >= m.maxRetries {
		return false, m.quarantine(ctx, entry, "retry limit reached")
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if insertErr := requeueOutbox(ctx, tx, entry); insertErr != nil {
		// The failed insert aborted tx.
		_ = tx.Rollback(ctx)
		return false, m.reschedule(ctx, entry, insertErr)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	recordDLQOutcome(entry, dlqOutcomeRequeued)
	return true, nil
}

func (m *DLQManager) quarantine(ctx context.Context, entry dlqEntry, reason string) error {
	if _, err := m.pool.Exec(ctx,
		`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
		reason, entry.ID,
	); err != nil {
		return err
	}
	recordDLQOutcome(entry, dlqOutcomeQuarantined)
	return nil
}

func (m *DLQManager) reschedule(ctx context.Context, entry dlqEntry, cause error) error {
	delay := m.backoffDelay(entry.RetryCount + 1)
	if _, err := m.pool.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		delay, cause.Error(), entry.ID,
	); err != nil {
		return err
	}
	recordDLQOutcome(entry, dlqOutcomeRescheduled)
	return nil
}

// backoffDelay calculates exponential backoff capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

// requeueOutbox copies the dead-lettered event back into the outbox as a new row, so the
// dispatcher publishes it after everything already queued.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("dlq entry %d has no schema subject", entry.ID)
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         SELECT aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
           FROM outbox_dlq
          WHERE dlq_id = $1`, entry.ID)
	return err
}

// dlqEntry is a due outbox_dlq row. Field order matches the select list in due.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}
