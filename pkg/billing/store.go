package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/marketplace-gateway/pkg/db"
)

const storeLogPrefix = "billing:store"

// LoggingStore is the SubscriptionStore used when no database is configured. It logs the
// change and reports the resulting state without persisting it.
type LoggingStore struct{}

// ActivateSubscription logs the activation.
func (LoggingStore) ActivateSubscription(_ context.Context, p db.ActivateSubscriptionParams) (*db.Subscription, error) {
	slog.Info(fmt.Sprintf("%s - (no database) activate subscription %s for customer %s", storeLogPrefix, p.ExternalID, p.CustomerID))
	return &db.Subscription{
		Status:     db.SubscriptionActive,
		Provider:   p.Provider,
		ExternalID: p.ExternalID,
		StartedAt:  p.PaidAt,
		RenewsAt:   p.RenewsAt,
		Modified:   time.Now().UTC(),
	}, nil
}

// CancelSubscription logs the cancellation.
func (LoggingStore) CancelSubscription(_ context.Context, p db.CancelSubscriptionParams) (*db.Subscription, error) {
	slog.Info(fmt.Sprintf("%s - (no database) cancel subscription %s", storeLogPrefix, p.ExternalID))
	canceledAt := p.CanceledAt
	return &db.Subscription{
		Status:     db.SubscriptionCanceled,
		Provider:   p.Provider,
		ExternalID: p.ExternalID,
		CanceledAt: &canceledAt,
		Modified:   time.Now().UTC(),
	}, nil
}
