// Package billing applies the internal effects of verified payment notifications:
// subscription state changes and payment event broadcasts.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/marketplace-gateway/pkg/db"
	"github.com/morezero/marketplace-gateway/pkg/events"
	"github.com/morezero/marketplace-gateway/pkg/webhook"
)

const logPrefix = "billing:effects"

// Provider is the provider name stored on subscription rows.
const Provider = "stripe"

// SubscriptionStore persists subscription state.
type SubscriptionStore interface {
	ActivateSubscription(ctx context.Context, p db.ActivateSubscriptionParams) (*db.Subscription, error)
	CancelSubscription(ctx context.Context, p db.CancelSubscriptionParams) (*db.Subscription, error)
}

// Effects implements webhook.Effects.
type Effects struct {
	store     SubscriptionStore
	publisher events.EventPublisher
	now       func() time.Time
}

var _ webhook.Effects = (*Effects)(nil)

// NewEffects creates Effects. A nil store logs state changes only; a nil publisher
// publishes nothing.
func NewEffects(store SubscriptionStore, publisher events.EventPublisher) *Effects {
	if store == nil {
		store = LoggingStore{}
	}
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	return &Effects{store: store, publisher: publisher, now: time.Now}
}

// PaymentSucceeded activates the paid subscription and announces the payment.
func (e *Effects) PaymentSucceeded(ctx context.Context, event *webhook.Event) error {
	inv, err := event.Invoice()
	if err != nil {
		return fmt.Errorf("%s - decode invoice: %w", logPrefix, err)
	}

	var change *events.SubscriptionChange
	if inv.Subscription != "" {
		params := db.ActivateSubscriptionParams{
			Provider:   Provider,
			ExternalID: inv.Subscription,
			CustomerID: inv.Customer,
			UserID:     inv.UserID(),
			PaidAt:     unixOrZero(inv.StatusTransitions.PaidAt),
		}
		if len(inv.Lines.Data) > 0 {
			line := inv.Lines.Data[0]
			params.Plan = line.Price.ID
			if line.Period.End > 0 {
				renews := time.Unix(line.Period.End, 0).UTC()
				params.RenewsAt = &renews
			}
		}
		sub, err := e.store.ActivateSubscription(ctx, params)
		if err != nil {
			return fmt.Errorf("%s - activate subscription %s: %w", logPrefix, inv.Subscription, err)
		}
		change = &events.SubscriptionChange{ExternalID: inv.Subscription, CustomerID: inv.Customer, Status: statusOf(sub, db.SubscriptionActive)}
	} else {
		slog.Info(fmt.Sprintf("%s - invoice %s has no subscription; nothing to activate", logPrefix, inv.ID))
	}

	return e.publish(ctx, event, events.DispositionHandled, change)
}

// SubscriptionDeleted marks the subscription canceled and announces it.
func (e *Effects) SubscriptionDeleted(ctx context.Context, event *webhook.Event) error {
	obj, err := event.Subscription()
	if err != nil {
		return fmt.Errorf("%s - decode subscription: %w", logPrefix, err)
	}
	if obj.ID == "" {
		slog.Warn(fmt.Sprintf("%s - event %s carries no subscription id", logPrefix, event.ID))
		return e.publish(ctx, event, events.DispositionHandled, nil)
	}

	canceledAt := unixOrZero(obj.CanceledAt)
	if canceledAt.IsZero() {
		canceledAt = unixOrZero(obj.EndedAt)
	}
	sub, err := e.store.CancelSubscription(ctx, db.CancelSubscriptionParams{
		Provider:   Provider,
		ExternalID: obj.ID,
		CustomerID: obj.Customer,
		CanceledAt: canceledAt,
	})
	if err != nil {
		return fmt.Errorf("%s - cancel subscription %s: %w", logPrefix, obj.ID, err)
	}
	change := &events.SubscriptionChange{ExternalID: obj.ID, CustomerID: obj.Customer, Status: statusOf(sub, db.SubscriptionCanceled)}
	return e.publish(ctx, event, events.DispositionHandled, change)
}

// Unhandled records an event type no effect exists for.
func (e *Effects) Unhandled(ctx context.Context, event *webhook.Event) error {
	return e.publish(ctx, event, events.DispositionUnhandled, nil)
}

func (e *Effects) publish(ctx context.Context, event *webhook.Event, disposition string, change *events.SubscriptionChange) error {
	pe := &events.PaymentEvent{
		ID:           event.ID,
		Type:         event.Type,
		Created:      event.Created,
		Disposition:  disposition,
		Subscription: change,
		ReceivedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if disposition == events.DispositionUnhandled {
		pe.Object = event.Data.Object
	}
	if err := e.publisher.PublishPayment(ctx, pe); err != nil {
		return fmt.Errorf("%s - publish %s: %w", logPrefix, event.Type, err)
	}
	return nil
}

func statusOf(sub *db.Subscription, fallback string) string {
	if sub == nil || sub.Status == "" {
		return fallback
	}
	return sub.Status
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
