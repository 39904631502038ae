package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
)

// Bounds for per-type star ratings attached to a review.
const (
	minStars      = 1
	maxStars      = 5
	minRatingType = 1
	maxRatingType = 5
)

type starRating struct {
	RatingTypeID int `json:"rating_type_id"`
	Stars        int `json:"stars"`
}

func (c *catalog) ratingEntries() []dispatcher.Entry {
	return []dispatcher.Entry{
		entry("create_review", dispatcher.CommandFunc(c.createReview)),
		entry("update_review", ack("Review updated", "Missing review_id", "review_id")),
		entry("delete_review", ack("Review deleted", "Missing review_id", "review_id")),
		entry("list_reviews_by_entry", ack("Reviews listed", "Missing entry IDs", "entry_user_id", "entry_node_id")),
	}
}

func (c *catalog) createReview(_ context.Context, raw json.RawMessage) (string, error) {
	in := parseInput(raw)
	if !in.hasAll("user_id", "entry_user_id") {
		return "", apperrors.Validation("Missing user or entry IDs")
	}

	var ratings []starRating
	if _, err := in.decode("ratings", &ratings); err != nil {
		return "", apperrors.Validation("Invalid ratings: expected a list of {rating_type_id, stars}")
	}
	seen := make(map[int]bool, len(ratings))
	for _, r := range ratings {
		if r.RatingTypeID < minRatingType || r.RatingTypeID > maxRatingType {
			return "", apperrors.Validation(fmt.Sprintf("Invalid rating: rating_type_id must be between %d and %d", minRatingType, maxRatingType))
		}
		if r.Stars < minStars || r.Stars > maxStars {
			return "", apperrors.Validation(fmt.Sprintf("Invalid rating: stars must be between %d and %d", minStars, maxStars))
		}
		if seen[r.RatingTypeID] {
			return "", apperrors.Validation(fmt.Sprintf("Duplicate rating type: %d", r.RatingTypeID))
		}
		seen[r.RatingTypeID] = true
	}
	return "Review created", nil
}
