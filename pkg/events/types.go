// Package events defines payment event types and the publishers that broadcast them.
package events

import "encoding/json"

// Dispositions of a verified webhook event.
const (
	DispositionHandled   = "handled"
	DispositionUnhandled = "unhandled"
)

// PaymentEvent is emitted after a verified payment-provider notification has been processed.
type PaymentEvent struct {
	ID           string              `json:"id"`
	Type         string              `json:"type"`
	Created      int64               `json:"created"`
	Disposition  string              `json:"disposition"`
	Subscription *SubscriptionChange `json:"subscription,omitempty"`
	Object       json.RawMessage     `json:"object,omitempty"`
	ReceivedAt   string              `json:"receivedAt"`
}

// SubscriptionChange summarizes the subscription state an event moved to.
type SubscriptionChange struct {
	ExternalID string `json:"externalId"`
	CustomerID string `json:"customerId,omitempty"`
	Status     string `json:"status"`
}
