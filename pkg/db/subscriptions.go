package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:subscriptions"

const subscriptionColumns = `id, user_id, status, plan, provider, external_id, customer_id,
	started_at, renews_at, canceled_at, modified`

// Repository provides database access for subscription state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("%s - no database configured", repoLogPrefix)
	}
	return r.pool.Ping(ctx)
}

// ActivateSubscription marks the provider subscription active, creating the row on first
// sight. Replaying the same payment leaves the row unchanged apart from modified.
func (r *Repository) ActivateSubscription(ctx context.Context, p ActivateSubscriptionParams) (*Subscription, error) {
	slog.Debug(fmt.Sprintf("%s - ActivateSubscription provider=%s external_id=%s", repoLogPrefix, p.Provider, p.ExternalID))

	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (id, user_id, status, plan, provider, external_id, customer_id, started_at, renews_at, modified)
		 VALUES ($1, $2, 'active', $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (provider, external_id) DO UPDATE SET
		   status = 'active',
		   user_id = COALESCE(EXCLUDED.user_id, subscriptions.user_id),
		   plan = COALESCE(EXCLUDED.plan, subscriptions.plan),
		   customer_id = COALESCE(EXCLUDED.customer_id, subscriptions.customer_id),
		   renews_at = COALESCE(EXCLUDED.renews_at, subscriptions.renews_at),
		   canceled_at = NULL,
		   modified = now()
		 RETURNING `+subscriptionColumns,
		uuid.NewString(), nullable(p.UserID), nullable(p.Plan), p.Provider, p.ExternalID,
		nullable(p.CustomerID), paidAt, p.RenewsAt)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelSubscription marks the provider subscription canceled. A subscription never seen
// before is recorded as canceled so later payment replays cannot resurrect it silently.
func (r *Repository) CancelSubscription(ctx context.Context, p CancelSubscriptionParams) (*Subscription, error) {
	slog.Debug(fmt.Sprintf("%s - CancelSubscription provider=%s external_id=%s", repoLogPrefix, p.Provider, p.ExternalID))

	canceledAt := p.CanceledAt
	if canceledAt.IsZero() {
		canceledAt = time.Now().UTC()
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (id, status, provider, external_id, customer_id, started_at, canceled_at, modified)
		 VALUES ($1, 'canceled', $2, $3, $4, $5, $5, now())
		 ON CONFLICT (provider, external_id) DO UPDATE SET
		   status = 'canceled',
		   customer_id = COALESCE(EXCLUDED.customer_id, subscriptions.customer_id),
		   canceled_at = COALESCE(subscriptions.canceled_at, EXCLUDED.canceled_at),
		   modified = now()
		 RETURNING `+subscriptionColumns,
		uuid.NewString(), p.Provider, p.ExternalID, nullable(p.CustomerID), canceledAt)

	return scanSubscription(row)
}

// GetSubscriptionByExternalID finds a subscription by provider reference. Returns nil, nil
// when absent.
func (r *Repository) GetSubscriptionByExternalID(ctx context.Context, provider, externalID string) (*Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE provider = $1 AND external_id = $2
		 LIMIT 1`, provider, externalID)

	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.Status, &s.Plan, &s.Provider, &s.ExternalID, &s.CustomerID,
		&s.StartedAt, &s.RenewsAt, &s.CanceledAt, &s.Modified,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan subscription failed: %w", repoLogPrefix, err)
	}
	return &s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
