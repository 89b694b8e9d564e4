//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitledger/internal/testsupport"
)

func TestPersistenceHandlerStoresEvent(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)

	handler := NewPersistenceHandler(pool)

	payload := json.RawMessage(`{"activity_id":"abc","user_id":"pawel"}`)
	msg := Message{
		EventType:     "activity.recorded",
		AggregateID:   "abc",
		SchemaID:      42,
		SchemaSubject: "ledger_activities-value",
		Topic:         "ledger_activities",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg), "redelivery must be absorbed")

	var storedPayload []byte
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_event_log`).Scan(&count))
	require.Equal(t, 1, count)
	var userID, aggregateID string
	err := pool.QueryRow(ctx, `SELECT payload, user_id, aggregate_id FROM ledger_event_log LIMIT 1`).Scan(&storedPayload, &userID, &aggregateID)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(storedPayload))
	require.Equal(t, "pawel", userID)
	require.Equal(t, "abc", aggregateID)
}

func TestPersistenceHandlerRejectsUntimedRecords(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)

	err := NewPersistenceHandler(pool).Handle(ctx, Message{
		EventType: "user.registered",
		Topic:     "ledger_users",
		Payload:   json.RawMessage(`{"user_id":"anna"}`),
	})
	require.ErrorContains(t, err, "no timestamp")
}

func TestFailureStoreParksAndCountsAttempts(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	store := NewFailureStore(pool)

	msg := Message{
		EventType:     "activity.recorded",
		AggregateID:   "a1",
		SchemaID:      3,
		SchemaSubject: "ledger_activities-value",
		Topic:         "ledger_activities",
		Partition:     0,
		Offset:        20,
		Payload:       json.RawMessage(`{"user_id":"pawel"}`),
	}
	require.NoError(t, store.Park(ctx, msg, errors.New("audit insert failed")))
	require.NoError(t, store.Park(ctx, msg, errors.New("cache unreachable")))

	var attempts int
	var reason string
	var payload []byte
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT attempts, error, payload FROM ledger_event_failures WHERE topic = $1 AND record_offset = $2`,
		msg.Topic, msg.Offset).Scan(&attempts, &reason, &payload))
	require.Equal(t, 2, attempts)
	require.Equal(t, "cache unreachable", reason)
	require.JSONEq(t, `{"user_id":"pawel"}`, string(payload))
}
