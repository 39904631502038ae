package webhook

import (
	"encoding/json"
	"strings"
)

// Event types with an internal effect.
const (
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is a verified provider notification.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Data     EventData `json:"data"`
}

// EventData wraps the object the event is about.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

func parseEvent(payload []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, err
	}
	e.Type = strings.TrimSpace(e.Type)
	return &e, nil
}

// Invoice is the subset of an invoice object payment effects need.
type Invoice struct {
	ID                  string            `json:"id"`
	Customer            string            `json:"customer"`
	Subscription        string            `json:"subscription"`
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	Lines struct {
		Data []InvoiceLine `json:"data"`
	} `json:"lines"`
}

// InvoiceLine is one line of an invoice.
type InvoiceLine struct {
	Period struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"period"`
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
}

// UserID returns the marketplace user the invoice belongs to, if the checkout recorded one.
func (i *Invoice) UserID() string {
	if v := i.SubscriptionDetails.Metadata["user_id"]; v != "" {
		return v
	}
	return i.Metadata["user_id"]
}

// Subscription is the subset of a subscription object cancellation effects need.
type Subscription struct {
	ID         string            `json:"id"`
	Customer   string            `json:"customer"`
	Status     string            `json:"status"`
	CanceledAt int64             `json:"canceled_at"`
	EndedAt    int64             `json:"ended_at"`
	Metadata   map[string]string `json:"metadata"`
}

// Invoice decodes the event object as an invoice.
func (e *Event) Invoice() (*Invoice, error) {
	var inv Invoice
	if err := json.Unmarshal(e.Data.Object, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Subscription decodes the event object as a subscription.
func (e *Event) Subscription() (*Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(e.Data.Object, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}
