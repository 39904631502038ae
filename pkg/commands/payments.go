package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
)

func (c *catalog) paymentEntries() []dispatcher.Entry {
	return []dispatcher.Entry{
		entry("stripe_webhook", dispatcher.CommandFunc(c.stripeWebhook)),
		entry("validate_oauth_token", dispatcher.CommandFunc(c.validateOAuthToken)),
	}
}

func (c *catalog) stripeWebhook(ctx context.Context, raw json.RawMessage) (string, error) {
	in := parseInput(raw)
	payload, ok := in.str("payload")
	if !ok {
		return "", apperrors.Validation("Missing payload")
	}
	header, ok := in.str("signature_header")
	if !ok {
		return "", apperrors.Validation("Missing signature header")
	}
	return c.webhook.Process(ctx, []byte(payload), header)
}

func (c *catalog) validateOAuthToken(ctx context.Context, raw json.RawMessage) (string, error) {
	in := parseInput(raw)
	provider, okProvider := in.str("provider")
	token, okToken := in.str("token")
	if !okProvider || !okToken {
		return "", apperrors.Validation("Missing provider or token")
	}
	profile, err := c.oauth.Validate(ctx, provider, token)
	if err != nil {
		return "", err
	}
	slog.Debug(fmt.Sprintf("%s - %s token validated", logPrefix, provider))
	return string(profile), nil
}
