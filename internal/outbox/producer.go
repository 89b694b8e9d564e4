package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption tunes the writers created by a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout bounds how long a writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// WithCompression selects the codec applied to every batch.
func WithCompression(c kafka.Compression) ProducerOption {
	return func(p *KafkaProducer) {
		p.compression = c
	}
}

// KafkaProducer keeps one synchronous writer per ledger topic. Records are hash-partitioned on
// their key, so the events of one user arrive in ledger order.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	compression  kafka.Compression

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer returns a producer for brokers. Writers are created on first use.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		compression:  kafka.Snappy,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages blocks until every broker replica acknowledged msgs on topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:         kafka.TCP(p.brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: p.batchTimeout,
			RequiredAcks: kafka.RequireAll,
			Compression:  p.compression,
		}
		p.writers[topic] = w
	}
	return w
}

// Close flushes and closes every writer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
