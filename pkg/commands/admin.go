package commands

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
)

const adminLogPrefix = "commands:admin"

// adminGuard checks the access_token of admin commands against the configured token.
type adminGuard struct {
	token []byte
}

func (g adminGuard) check(in input) error {
	tok, ok := in.str("access_token")
	if !ok {
		return apperrors.Validation("Missing access token")
	}
	if len(g.token) == 0 || subtle.ConstantTimeCompare([]byte(tok), g.token) != 1 {
		return apperrors.Unauthorized("Unauthorized: Invalid access token.")
	}
	return nil
}

// guarded wraps an admin command with the access token check.
func (c *catalog) guarded(name, result string) dispatcher.Entry {
	return entry(name, dispatcher.CommandFunc(func(_ context.Context, raw json.RawMessage) (string, error) {
		if err := c.admin.check(parseInput(raw)); err != nil {
			slog.Warn(fmt.Sprintf("%s - %s rejected: %s", adminLogPrefix, name, apperrors.Message(err)))
			return "", err
		}
		slog.Info(fmt.Sprintf("%s - %s authorized", adminLogPrefix, name))
		return result, nil
	}))
}

func (c *catalog) adminEntries() []dispatcher.Entry {
	return []dispatcher.Entry{
		c.guarded("admin_list_users", "List of users"),
		c.guarded("admin_list_entries", "List of entries"),
		c.guarded("admin_remove_entry", "Entry removed"),
		c.guarded("admin_ban_user", "User banned"),
		c.guarded("admin_stats", "Stats"),
		c.guarded("admin_setup_daily_random", "Daily random list scheduled"),
		c.guarded("admin_setup_daily_hottest", "Daily hottest list scheduled"),
	}
}
