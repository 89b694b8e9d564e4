// Package consumer reads ledger events published by the outbox dispatcher and
// fans them out to audit and cache handlers.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded ledger events.
type Handler interface {
	Handle(context.Context, Message) error
}

// DeadLetter keeps events whose handler failed every attempt, so the processor can commit
// past them without losing them.
type DeadLetter interface {
	Park(ctx context.Context, msg Message, cause error) error
}

// Message is a ledger event as framed by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	AggregateID   string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetry makes the processor retry a failing handler up to attempts times in total,
// sleeping backoff before the first retry and doubling it afterwards.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.backoff = backoff
	}
}

// WithDeadLetter parks events that exhausted their handler attempts in dl before their
// offset is committed.
func WithDeadLetter(dl DeadLetter) Option {
	return func(p *Processor) {
		p.deadLetter = dl
	}
}

// Processor pulls records from one reader and hands each decoded event to a Handler.
// Offsets are committed only once the handler succeeded, the event was parked in the dead
// letter, or the record is undecodable. Group offsets are cumulative, so an event that can be
// neither handled nor parked stops the processor before anything later is committed.
type Processor struct {
	reader     Reader
	handler    Handler
	deadLetter DeadLetter
	logger     *log.Logger
	attempts   int
	backoff    time.Duration
}

// NewProcessor constructs a Processor that tries each message once unless WithRetry is given.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		logger:   log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		attempts: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes records until ctx is cancelled, returning ctx's error, or until an event can
// be neither handled nor parked, returning that failure with the event's offset uncommitted.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		msg, err := decodeMessage(record)
		if err != nil {
			p.logger.Printf("skipping undecodable record: %v", err)
			recordDecodeError(record.Topic)
			// A record that cannot be decoded now never will be.
			p.commit(ctx, record)
			continue
		}

		started := time.Now()
		if err := p.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			recordHandlerError(msg)
			if err := p.park(ctx, msg, err); err != nil {
				return err
			}
			p.commit(ctx, record)
			continue
		}
		if p.commit(ctx, record) {
			recordProcessed(msg, time.Since(started))
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg Message) error {
	delay := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		recordRetry(msg)
		p.logger.Printf("handler attempt %d/%d failed for %s: %v", attempt, p.attempts, msg.EventType, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (p *Processor) park(ctx context.Context, msg Message, cause error) error {
	where := fmt.Sprintf("%s at %s/%d@%d", msg.EventType, msg.Topic, msg.Partition, msg.Offset)
	if p.deadLetter == nil {
		return fmt.Errorf("handle %s: %w", where, cause)
	}
	if err := p.deadLetter.Park(ctx, msg, cause); err != nil {
		return fmt.Errorf("park %s after handler error %q: %w", where, cause, err)
	}
	p.logger.Printf("parked %s for %s: %v", where, msg.AggregateID, cause)
	recordParked(msg)
	return nil
}

func (p *Processor) commit(ctx context.Context, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Printf("commit error (topic=%s, offset=%d): %v", record.Topic, record.Offset, err)
		return false
	}
	return true
}
