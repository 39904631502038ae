package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/metrics"
)

const logPrefix = "webhook:processor"

// Acknowledgements returned for verified events.
const (
	AckPaymentSucceeded    = "Payment succeeded"
	AckSubscriptionDeleted = "Subscription deleted"
	AckUnhandled           = "Unhandled event type"
)

// Effects run the internal consequences of verified events.
type Effects interface {
	PaymentSucceeded(ctx context.Context, event *Event) error
	SubscriptionDeleted(ctx context.Context, event *Event) error
	Unhandled(ctx context.Context, event *Event) error
}

// Config configures a Processor.
type Config struct {
	Secret          string
	Tolerance       time.Duration
	RecordUnhandled bool
	Now             func() time.Time
}

// Processor verifies notifications and dispatches them by event type.
type Processor struct {
	verifier        *Verifier
	effects         Effects
	recordUnhandled bool
	metrics         *metrics.Metrics
}

// NewProcessor creates a Processor. effects and m may be nil.
func NewProcessor(cfg Config, effects Effects, m *metrics.Metrics) *Processor {
	if effects == nil {
		effects = noopEffects{}
	}
	return &Processor{
		verifier:        NewVerifier(cfg.Secret, cfg.Tolerance, cfg.Now),
		effects:         effects,
		recordUnhandled: cfg.RecordUnhandled,
		metrics:         m,
	}
}

// Process verifies payload against signatureHeader and runs the matching effect. It
// returns the acknowledgement for the event type, or a gateway error.
func (p *Processor) Process(ctx context.Context, payload []byte, signatureHeader string) (string, error) {
	if err := p.verifier.Verify(payload, signatureHeader); err != nil {
		slog.Warn(fmt.Sprintf("%s - signature verification failed: %v", logPrefix, err))
		return "", apperrors.Verification("Webhook error: "+err.Error(), err)
	}

	event, err := parseEvent(payload)
	if err != nil {
		return "", apperrors.Validation("Webhook error: invalid event payload")
	}
	if event.Type == "" {
		return "", apperrors.Validation("Webhook error: event type missing")
	}

	switch event.Type {
	case EventPaymentSucceeded:
		return p.run(ctx, event, p.effects.PaymentSucceeded, AckPaymentSucceeded)
	case EventSubscriptionDeleted:
		return p.run(ctx, event, p.effects.SubscriptionDeleted, AckSubscriptionDeleted)
	default:
		p.unhandled(ctx, event)
		return AckUnhandled, nil
	}
}

func (p *Processor) run(ctx context.Context, event *Event, effect func(context.Context, *Event) error, ack string) (string, error) {
	if err := effect(ctx, event); err != nil {
		slog.Error(fmt.Sprintf("%s - effect for %s event %s failed: %v", logPrefix, event.Type, event.ID, err))
		p.metrics.RecordWebhookEvent(event.Type, "failed")
		return "", apperrors.Internal(fmt.Sprintf("Webhook error: failed to process %s", event.Type), err)
	}
	slog.Info(fmt.Sprintf("%s - processed %s event %s", logPrefix, event.Type, event.ID))
	p.metrics.RecordWebhookEvent(event.Type, "handled")
	return ack, nil
}

func (p *Processor) unhandled(ctx context.Context, event *Event) {
	p.metrics.RecordWebhookEvent(metricsEventType(event.Type), "unhandled")
	if !p.recordUnhandled {
		return
	}
	slog.Info(fmt.Sprintf("%s - unhandled event type %s (%s)", logPrefix, event.Type, event.ID))
	if err := p.effects.Unhandled(ctx, event); err != nil {
		// recording is best effort; the provider must still see an acknowledgement
		slog.Warn(fmt.Sprintf("%s - failed to record unhandled event %s: %v", logPrefix, event.ID, err))
	}
}

// metricsEventType bounds label cardinality for provider-controlled type strings.
func metricsEventType(t string) string {
	if len(t) > 64 || strings.ContainsAny(t, " \t\n") {
		return "other"
	}
	return t
}

type noopEffects struct{}

func (noopEffects) PaymentSucceeded(context.Context, *Event) error    { return nil }
func (noopEffects) SubscriptionDeleted(context.Context, *Event) error { return nil }
func (noopEffects) Unhandled(context.Context, *Event) error           { return nil }
