package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/marketplace-gateway/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// DefaultFlushTimeout bounds the flush when the caller's context carries no deadline.
const DefaultFlushTimeout = 5 * time.Second

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// SubjectPrefix overrides the payment subject prefix (PAYMENT_EVENT_SUBJECT).
	SubjectPrefix string
}

// CommsPublisher publishes payment events to COMMS subjects.
type CommsPublisher struct {
	nc     *comms.Conn
	prefix string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	prefix := commsutil.SubjectPaymentEvent
	if opts != nil && opts.SubjectPrefix != "" {
		prefix = opts.SubjectPrefix
	}
	return &CommsPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject event is published on: <prefix>.<type> for handled events,
// <prefix>.unhandled for events no effect exists for.
func (p *CommsPublisher) Subject(event *PaymentEvent) string {
	if event.Disposition == DispositionUnhandled {
		return commsutil.BuildUnhandledSubject(p.prefix)
	}
	return commsutil.BuildPaymentSubject(p.prefix, event.Type)
}

// PublishPayment publishes event and flushes so the caller learns about a dead connection.
func (p *CommsPublisher) PublishPayment(ctx context.Context, event *PaymentEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subject := p.Subject(event)
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return fmt.Errorf("%s - publish %s: %w", commsPublisherLogPrefix, subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFlushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%s - flush %s: %w", commsPublisherLogPrefix, subject, err)
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event %s on %s", commsPublisherLogPrefix, event.Type, event.ID, subject))
	return nil
}
