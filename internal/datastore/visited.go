package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/corecrawl/internal/domain"
)

// RecordVisited writes a durable per-URL outcome. Visited records are
// created once and never updated after success (§3 lifecycles).
func (c *Client) RecordVisited(ctx context.Context, hash16 string, rec *domain.VisitedRecord) error {
	return c.withRetry(ctx, "visited_record", func() error {
		return c.rdb.HSet(ctx, visitedKey(hash16), map[string]any{
			"url":          rec.URL,
			"status_code":  rec.StatusCode,
			"fetched_at":   rec.FetchedAt.Unix(),
			"content_path": rec.ContentPath,
			"error":        rec.Error,
		}).Err()
	})
}

// GetVisited reads a visited record by hash16. Returns ErrNotFound if absent.
func (c *Client) GetVisited(ctx context.Context, hash16 string) (*domain.VisitedRecord, error) {
	var fields map[string]string
	err := c.withRetry(ctx, "visited_get", func() error {
		var hgetErr error
		fields, hgetErr = c.rdb.HGetAll(ctx, visitedKey(hash16)).Result()
		return hgetErr
	})
	if err != nil {
		return nil, fmt.Errorf("datastore: get visited %q: %w", hash16, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return &domain.VisitedRecord{
		URL:         fields["url"],
		StatusCode:  int(parseInt64(fields["status_code"])),
		FetchedAt:   time.Unix(parseInt64(fields["fetched_at"]), 0),
		ContentPath: fields["content_path"],
		Error:       fields["error"],
	}, nil
}
