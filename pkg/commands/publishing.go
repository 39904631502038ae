package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
	"github.com/morezero/marketplace-gateway/pkg/semver"
)

const publishingLogPrefix = "commands:publishing"

// dependency is one entry of create_entry's optional "dependencies" list.
type dependency struct {
	UserID json.RawMessage `json:"user_id"`
	NodeID json.RawMessage `json:"node_id"`
	Range  string          `json:"range"`
}

func (c *catalog) publishingEntries() []dispatcher.Entry {
	return []dispatcher.Entry{
		entry("create_entry", dispatcher.CommandFunc(c.createEntry)),
		entry("update_entry", dispatcher.CommandFunc(c.updateEntry)),
		entry("delete_entry", ack("Entry deleted", "Missing entryId", "entryId")),
		entry("get_creator_dashboard", ack("Creator dashboard", "Missing user_id", "user_id")),
	}
}

func (c *catalog) createEntry(_ context.Context, raw json.RawMessage) (string, error) {
	in := parseInput(raw)
	if !in.has("json") {
		return "", apperrors.Validation("Missing JSON payload")
	}
	if err := checkVersion(in, "version"); err != nil {
		return "", err
	}

	var deps []dependency
	if _, err := in.decode("dependencies", &deps); err != nil {
		return "", apperrors.Validation("Invalid dependencies: expected a list of {user_id, node_id, range}")
	}
	for i, d := range deps {
		if len(d.NodeID) == 0 {
			return "", apperrors.Validation(fmt.Sprintf("Invalid dependency %d: missing node_id", i))
		}
		if d.Range == "" {
			continue
		}
		if err := semver.ValidateRange(d.Range); err != nil {
			return "", apperrors.Validation(fmt.Sprintf("Invalid dependency range: %s", d.Range))
		}
	}

	slog.Debug(fmt.Sprintf("%s - entry accepted with %d dependencies", publishingLogPrefix, len(deps)))
	return "Entry created", nil
}

func (c *catalog) updateEntry(_ context.Context, raw json.RawMessage) (string, error) {
	in := parseInput(raw)
	if !in.has("entryId") {
		return "", apperrors.Validation("Missing entryId")
	}
	if err := checkVersion(in, "version"); err != nil {
		return "", err
	}
	if err := checkVersion(in, "previous_version"); err != nil {
		return "", err
	}

	next, hasNext := in.str("version")
	prev, hasPrev := in.str("previous_version")
	if hasNext && hasPrev {
		upgrade, err := semver.IsUpgrade(prev, next)
		if err != nil {
			return "", apperrors.Validation(fmt.Sprintf("Invalid version: %s", next))
		}
		if !upgrade {
			return "", apperrors.Validation(fmt.Sprintf("Version must increase: %s -> %s", prev, next))
		}
	}
	return "Entry updated", nil
}

// checkVersion validates key as a semantic version when present.
func checkVersion(in input, key string) error {
	if !in.has(key) {
		return nil
	}
	v, ok := in.str(key)
	if !ok {
		return apperrors.Validation(fmt.Sprintf("Invalid version: %s must be a string", key))
	}
	if _, err := semver.ParseVersion(v); err != nil {
		return apperrors.Validation(fmt.Sprintf("Invalid version: %s", v))
	}
	return nil
}
