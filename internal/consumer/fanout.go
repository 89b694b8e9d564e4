package consumer

import (
	"context"
	"errors"
)

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Fanout delivers every message to each handler in order. All handlers run even
// when an earlier one fails, and the joined error sends the whole message back
// through the processor's retry and parking path, so handlers must be idempotent.
type Fanout []Handler

// Handle implements Handler.
func (f Fanout) Handle(ctx context.Context, msg Message) error {
	var errs []error
	for _, h := range f {
		if err := h.Handle(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
