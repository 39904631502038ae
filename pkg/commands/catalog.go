// Package commands holds the marketplace command catalog served by the gateway.
//
// Handlers validate their required input and answer with fixed acknowledgements;
// payment and identity commands delegate to the webhook processor and the OAuth
// validator.
package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
	"github.com/morezero/marketplace-gateway/pkg/oauth"
	"github.com/morezero/marketplace-gateway/pkg/webhook"
)

const logPrefix = "commands:catalog"

// WebhookProcessor verifies and handles a payment provider notification.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signatureHeader string) (string, error)
}

// TokenValidator resolves a provider access token to the holder's profile.
type TokenValidator interface {
	Validate(ctx context.Context, provider, token string) (json.RawMessage, error)
}

// Deps are the collaborators shared by the catalog.
type Deps struct {
	// AdminToken gates admin_* commands. Empty rejects every admin call.
	AdminToken string
	Webhook    WebhookProcessor
	OAuth      TokenValidator
	// Now defaults to time.Now.
	Now func() time.Time
}

type catalog struct {
	admin   adminGuard
	webhook WebhookProcessor
	oauth   TokenValidator
	now     func() time.Time
}

func newCatalog(deps Deps) *catalog {
	c := &catalog{
		admin:   adminGuard{token: []byte(deps.AdminToken)},
		webhook: deps.Webhook,
		oauth:   deps.OAuth,
		now:     deps.Now,
	}
	if c.webhook == nil {
		c.webhook = webhook.NewProcessor(webhook.Config{}, nil, nil)
	}
	if c.oauth == nil {
		c.oauth = oauth.NewValidator()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// NewRegistry builds the registry holding every catalog command.
func NewRegistry(deps Deps) (*dispatcher.Registry, error) {
	return dispatcher.NewRegistry(Entries(deps)...)
}

// Entries lists the catalog commands.
func Entries(deps Deps) []dispatcher.Entry {
	c := newCatalog(deps)

	var entries []dispatcher.Entry
	entries = append(entries, c.accountEntries()...)
	entries = append(entries, c.cartEntries()...)
	entries = append(entries, c.publishingEntries()...)
	entries = append(entries, c.ratingEntries()...)
	entries = append(entries, c.adminEntries()...)
	entries = append(entries, c.contentEntries()...)
	entries = append(entries, c.paymentEntries()...)
	return entries
}

// ack builds a command that checks keys are present and answers result.
func ack(result, missing string, keys ...string) dispatcher.CommandFunc {
	return func(_ context.Context, raw json.RawMessage) (string, error) {
		if len(keys) > 0 && !parseInput(raw).hasAll(keys...) {
			return "", apperrors.Validation(missing)
		}
		return result, nil
	}
}

func entry(name string, cmd dispatcher.Command) dispatcher.Entry {
	return dispatcher.Entry{Name: name, Command: cmd}
}
