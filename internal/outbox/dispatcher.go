// Package outbox delivers ledger events recorded by the Postgres store to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/fitledger/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message is one unpublished row of the outbox table.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the logger used to report delivery failures.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher polls the outbox and publishes claimed events topic by topic. A topic whose write
// fails is dead-lettered without holding back the other topics of the batch.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	dlq          *DLQWriter
	pollInterval time.Duration
	batchSize    int
	logger       *log.Logger
	done         chan struct{}

	schemaMu  sync.Mutex
	schemaIDs map[string]int // keyed by subject
}

// NewDispatcher constructs a Dispatcher. Call Start to begin polling.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		dlq:          NewDLQWriter(pool),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       log.New(log.Writer(), "[outbox] ", log.LstdFlags|log.Lshortfile),
		done:         make(chan struct{}),
		schemaIDs:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.done)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("dispatch pass failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

type topicBatch struct {
	topic    string
	messages []Message
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil || len(messages) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	var errs []error
	for _, batch := range groupByTopic(messages) {
		if err := d.deliver(ctx, batch); err != nil {
			d.logger.Printf("delivery to %s failed for %d events: %v", batch.topic, len(batch.messages), err)
			if dlqErr := d.dlq.WriteBatch(ctx, batch.messages, err.Error()); dlqErr != nil {
				// Left unpublished so the next pass picks the batch up again.
				errs = append(errs, dlqErr)
				continue
			}
			recordDispatch(batch.topic, outcomeDeadLettered, len(batch.messages))
			continue
		}
		recordDispatch(batch.topic, outcomeDelivered, len(batch.messages))
		if err := markPublished(ctx, d.pool, batch.messages); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// groupByTopic splits messages per topic, keeping event order within each topic.
func groupByTopic(messages []Message) []topicBatch {
	var batches []topicBatch
	index := make(map[string]int)
	for _, msg := range messages {
		i, ok := index[msg.Topic]
		if !ok {
			i = len(batches)
			index[msg.Topic] = i
			batches = append(batches, topicBatch{topic: msg.Topic})
		}
		batches[i].messages = append(batches[i].messages, msg)
	}
	return batches
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) ([]Message, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
           FROM outbox
          WHERE published_at IS NULL
          ORDER BY event_id
          LIMIT $1
          FOR UPDATE SKIP LOCKED`, d.batchSize)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var msg Message
		err := row.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload)
		return msg, err
	})
	if err != nil || len(messages) == 0 {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

func (d *Dispatcher) deliver(ctx context.Context, batch topicBatch) error {
	records := make([]kafka.Message, 0, len(batch.messages))
	for _, msg := range batch.messages {
		schema, ok := eventSchemas[msg.EventType]
		if !ok {
			return fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
		}
		schemaID, err := d.schemaID(ctx, msg.SchemaSubject, schema)
		if err != nil {
			return err
		}

		records = append(records, kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: events.Frame(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: events.HeaderEventType, Value: []byte(msg.EventType)},
				{Key: events.HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
				{Key: events.HeaderAggregateID, Value: []byte(msg.AggregateID)},
			},
		})
	}
	return d.producer.WriteMessages(ctx, batch.topic, records...)
}

// schemaID resolves subject through the registry once per process.
func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	d.schemaMu.Lock()
	id, ok := d.schemaIDs[subject]
	d.schemaMu.Unlock()
	if ok {
		return id, nil
	}

	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, fmt.Errorf("resolve schema %s: %w", subject, err)
	}
	d.schemaMu.Lock()
	d.schemaIDs[subject] = id
	d.schemaMu.Unlock()
	return id, nil
}

func markPublished(ctx context.Context, db execer, messages []Message) error {
	_, err := db.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
	return err
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}
