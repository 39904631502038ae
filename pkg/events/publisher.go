package events

import "context"

// EventPublisher publishes payment events.
type EventPublisher interface {
	PublishPayment(ctx context.Context, event *PaymentEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (no COMMS connection).
type NoOpPublisher struct{}

// PublishPayment is a no-op.
func (p *NoOpPublisher) PublishPayment(_ context.Context, _ *PaymentEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *PaymentEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *PaymentEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishPayment calls the callback.
func (p *CallbackPublisher) PublishPayment(ctx context.Context, event *PaymentEvent) error {
	return p.callback(ctx, event)
}
