//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/fitledger/internal/events"
	"example.com/fitledger/internal/testsupport"
)

func TestDLQManagerRequeuesEntries(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)

	msg := Message{
		EventID:       1,
		AggregateType: "user",
		AggregateID:   "pawel",
		EventType:     events.TypeUserRegistered,
		Topic:         "ledger_users",
		SchemaSubject: "ledger_users-value",
		PartitionKey:  "user:pawel",
		Payload:       json.RawMessage(`{"user_id":"pawel"}`),
	}
	require.NoError(t, NewDLQWriter(pool).Write(ctx, msg, "kafka write failed"))

	before := testutil.ToFloat64(dlqOutcomeCounter.WithLabelValues(msg.Topic, msg.EventType, dlqOutcomeRequeued))

	manager := NewDLQManager(pool, 3, time.Second)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	var outboxCount, dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND partition_key = 'user:pawel'`).Scan(&outboxCount))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 1, outboxCount)
	require.Zero(t, dlqCount)

	after := testutil.ToFloat64(dlqOutcomeCounter.WithLabelValues(msg.Topic, msg.EventType, dlqOutcomeRequeued))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestDLQManagerQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)

	_, err := pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count)
         VALUES (7, $1, 'ledger_activities', '{}'::jsonb, 'boom', 'activity', 'a1', 'ledger_activities-value', 'user:pawel', 3)`,
		events.TypeActivityRecorded)
	require.NoError(t, err)

	requeued, err := NewDLQManager(pool, 3, time.Second).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)
	require.InDelta(t, 1, testutil.ToFloat64(dlqBacklogGauge.WithLabelValues("quarantined")), 0.0001)
	require.Zero(t, testutil.ToFloat64(dlqBacklogGauge.WithLabelValues("pending")))

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantine_reason FROM outbox_dlq WHERE event_id = 7 AND quarantined_at IS NOT NULL`).Scan(&reason))
	require.Equal(t, "retry limit reached", reason)
}
