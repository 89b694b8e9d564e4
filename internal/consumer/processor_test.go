package consumer

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fitledger/internal/events"
)

func ledgerRecord(topic, eventType, aggregateID string, offset int64, schemaID int, payload string) kafka.Message {
	return kafka.Message{
		Topic:  topic,
		Offset: offset,
		Time:   time.Now().UTC(),
		Value:  events.Frame(schemaID, []byte(payload)),
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(eventType)},
			{Key: events.HeaderAggregateID, Value: []byte(aggregateID)},
			{Key: events.HeaderSchemaSubject, Value: []byte(topic + "-value")},
		},
	}
}

func quietLogger(t *testing.T) Option {
	return WithLogger(log.New(testWriter{t}, "", 0))
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := `{"activity_id":"abc","user_id":"pawel"}`
	reader := &stubReader{messages: []kafka.Message{
		ledgerRecord("ledger_activities", events.TypeActivityRecorded, "abc", 10, 42, payload),
	}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, quietLogger(t)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, []int64{10}, reader.committed)
	require.Equal(t, events.TypeActivityRecorded, handler.last.EventType)
	require.Equal(t, "abc", handler.last.AggregateID)
	require.Equal(t, "ledger_activities-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, payload, string(handler.last.Payload))
}

func TestProcessorStopsBeforeCommittingPastFailedEvent(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		ledgerRecord("ledger_users", events.TypeUserRegistered, "anna", 20, 99, `{"user_id":"anna"}`),
		ledgerRecord("ledger_users", events.TypeUserRegistered, "ola", 21, 99, `{"user_id":"ola"}`),
	}}
	handler := &stubHandler{errs: []error{errors.New("boom")}}

	before := testutil.ToFloat64(handlerErrorCounter.WithLabelValues("ledger_users", events.TypeUserRegistered))

	err := NewProcessor(reader, handler, quietLogger(t)).Run(context.Background())
	require.ErrorContains(t, err, "boom")
	require.ErrorContains(t, err, "ledger_users/0@20")

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.index, "offset 21 must not be fetched")
	require.Empty(t, reader.committed)
	after := testutil.ToFloat64(handlerErrorCounter.WithLabelValues("ledger_users", events.TypeUserRegistered))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestProcessorParksFailedEventBeforeMovingOn(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		ledgerRecord("ledger_users", events.TypeUserRegistered, "anna", 20, 99, `{"user_id":"anna"}`),
		ledgerRecord("ledger_users", events.TypeUserRegistered, "ola", 21, 99, `{"user_id":"ola"}`),
	}}
	handler := &stubHandler{errs: []error{errors.New("audit insert failed")}}
	parked := &stubDeadLetter{}

	err := NewProcessor(reader, handler, quietLogger(t), WithDeadLetter(parked)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, parked.msgs, 1)
	require.Equal(t, int64(20), parked.msgs[0].Offset)
	require.EqualError(t, parked.causes[0], "audit insert failed")
	require.Equal(t, []int64{20, 21}, reader.committed)
	require.Equal(t, "ola", handler.last.AggregateID)
}

func TestProcessorStopsWhenParkingFails(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		ledgerRecord("ledger_activities", events.TypeActivityRecorded, "a1", 5, 1, `{"user_id":"pawel"}`),
		ledgerRecord("ledger_activities", events.TypeActivityRecorded, "a2", 6, 1, `{"user_id":"pawel"}`),
	}}
	handler := &stubHandler{errs: []error{errors.New("boom")}}
	parked := &stubDeadLetter{err: errors.New("postgres down")}

	err := NewProcessor(reader, handler, quietLogger(t), WithDeadLetter(parked)).Run(context.Background())
	require.ErrorContains(t, err, "postgres down")
	require.Empty(t, reader.committed)
	require.Equal(t, 1, reader.index)
}

func TestProcessorRetriesHandlerBeforeCommitting(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		ledgerRecord("ledger_activities", events.TypeActivityRecorded, "a1", 3, 7, `{"user_id":"pawel"}`),
	}}
	handler := &stubHandler{errs: []error{errors.New("cache down"), errors.New("cache down")}}

	before := testutil.ToFloat64(retryCounter.WithLabelValues(events.TypeActivityRecorded))

	proc := NewProcessor(reader, handler, quietLogger(t), WithRetry(3, time.Millisecond))
	require.ErrorIs(t, proc.Run(context.Background()), context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, []int64{3}, reader.committed)
	after := testutil.ToFloat64(retryCounter.WithLabelValues(events.TypeActivityRecorded))
	require.InDelta(t, before+2, after, 0.0001)
}

func TestProcessorStopsRetryingWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &stubReader{
		messages: []kafka.Message{
			ledgerRecord("ledger_users", events.TypeUserRegistered, "anna", 1, 1, `{"user_id":"anna"}`),
		},
		after: func() error {
			t.Fatal("processor must return before fetching again")
			return nil
		},
	}
	handler := HandlerFunc(func(context.Context, Message) error {
		cancel()
		return errors.New("unavailable")
	})

	proc := NewProcessor(reader, handler, quietLogger(t), WithRetry(5, time.Hour))
	require.ErrorIs(t, proc.Run(ctx), context.Canceled)
	require.Empty(t, reader.committed)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	noType := ledgerRecord("ledger_activities", "", "x", 3, 1, `{}`)
	reader := &stubReader{messages: []kafka.Message{
		{Topic: "ledger_activities", Offset: 1, Value: []byte{0, 1}},
		{Topic: "ledger_activities", Offset: 2, Value: []byte{1, 0, 0, 0, 1, '{', '}'}},
		noType,
	}}
	handler := &stubHandler{}

	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("ledger_activities"))

	require.ErrorIs(t, NewProcessor(reader, handler, quietLogger(t)).Run(context.Background()), context.Canceled)

	require.Zero(t, handler.calls)
	require.Len(t, reader.committed, 3)
	after := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("ledger_activities"))
	require.InDelta(t, before+3, after, 0.0001)
}

type stubReader struct {
	messages  []kafka.Message
	index     int
	committed []int64
	after     func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type stubDeadLetter struct {
	err    error
	msgs   []Message
	causes []error
}

func (d *stubDeadLetter) Park(_ context.Context, msg Message, cause error) error {
	if d.err != nil {
		return d.err
	}
	d.msgs = append(d.msgs, msg)
	d.causes = append(d.causes, cause)
	return nil
}

func (r *stubReader) Close() error { return nil }

// stubHandler fails with errs in order, then succeeds.
type stubHandler struct {
	calls int
	errs  []error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return err
	}
	return nil
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
