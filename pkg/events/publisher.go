package events

import "context"

// Publisher forwards a Batch after a successful module call.
type Publisher interface {
	Publish(ctx context.Context, batch *Batch) error
}

// NoOpPublisher drops every batch. The server falls back to it when event
// publishing is switched off.
type NoOpPublisher struct{}

// Publish discards batch.
func (p *NoOpPublisher) Publish(_ context.Context, _ *Batch) error {
	return nil
}

// CallbackPublisher hands each batch to a function, so tests and embedding
// code can observe what module calls produced without a COMMS connection.
type CallbackPublisher struct {
	fn func(ctx context.Context, batch *Batch) error
}

// NewCallbackPublisher returns a CallbackPublisher around fn. A nil fn
// accepts and drops every batch.
func NewCallbackPublisher(fn func(ctx context.Context, batch *Batch) error) *CallbackPublisher {
	return &CallbackPublisher{fn: fn}
}

// Publish passes batch to the wrapped function and returns its error.
func (p *CallbackPublisher) Publish(ctx context.Context, batch *Batch) error {
	if p.fn == nil {
		return nil
	}
	return p.fn(ctx, batch)
}
