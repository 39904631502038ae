package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
)

// MinutesPerDay bounds the minute-of-day slot used by random listings.
const MinutesPerDay = 24 * 60

func (c *catalog) contentEntries() []dispatcher.Entry {
	return []dispatcher.Entry{
		entry("list_entries", ack("Entries listed", "")),
		entry("search_entries", ack("Search results", "Missing query", "query")),
		entry("get_entry", ack("Entry", "Missing entryId", "entryId")),
		entry("list_entries_by_creator", ack("Entries by creator", "Missing creator_id", "creator_id")),
		entry("list_categories", ack("Categories listed", "")),
		entry("list_new_entries", ack("New entries listed", "")),
		entry("list_popular_entries", ack("Popular entries listed", "")),
		entry("list_best_rated_entries", ack("Best rated entries listed", "")),
		entry("list_random_entries", dispatcher.CommandFunc(c.listRandomEntries)),
	}
}

func (c *catalog) listRandomEntries(_ context.Context, raw json.RawMessage) (string, error) {
	in := parseInput(raw)

	var minute int
	ok, err := in.decode("minute", &minute)
	switch {
	case err != nil:
		return "", apperrors.Validation("Invalid minute: expected an integer")
	case !ok:
		now := c.now().UTC()
		minute = now.Hour()*60 + now.Minute()
	case minute < 0 || minute >= MinutesPerDay:
		return "", apperrors.Validation(fmt.Sprintf("Invalid minute: must be between 0 and %d", MinutesPerDay-1))
	}
	return fmt.Sprintf("Random entries for minute %d", minute), nil
}
