package db

import "time"

// Subscription statuses written by billing effects.
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// Subscription represents a row in the subscriptions table.
type Subscription struct {
	ID         string     `json:"id"`
	UserID     *string    `json:"user_id,omitempty"`
	Status     string     `json:"status"`
	Plan       *string    `json:"plan,omitempty"`
	Provider   string     `json:"provider"`
	ExternalID string     `json:"external_id"`
	CustomerID *string    `json:"customer_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	RenewsAt   *time.Time `json:"renews_at,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	Modified   time.Time  `json:"modified"`
}

// ActivateSubscriptionParams holds parameters for ActivateSubscription.
type ActivateSubscriptionParams struct {
	Provider   string
	ExternalID string
	CustomerID string
	UserID     string
	Plan       string
	PaidAt     time.Time
	RenewsAt   *time.Time
}

// CancelSubscriptionParams holds parameters for CancelSubscription.
type CancelSubscriptionParams struct {
	Provider   string
	ExternalID string
	CustomerID string
	CanceledAt time.Time
}
