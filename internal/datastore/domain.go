package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/corecrawl/internal/domain"
)

// GetDomain reads a domain's metadata hash. Returns ErrNotFound if the
// domain has never been enqueued.
func (c *Client) GetDomain(ctx context.Context, registeredDomain string) (*domain.Domain, error) {
	var out map[string]string
	err := c.withRetry(ctx, "domain_get", func() error {
		var hgetErr error
		out, hgetErr = c.rdb.HGetAll(ctx, domainKey(registeredDomain)).Result()
		return hgetErr
	})
	if err != nil {
		return nil, fmt.Errorf("datastore: get domain %q: %w", registeredDomain, err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return hashToDomain(registeredDomain, out), nil
}

// IncrFrontierSize atomically bumps a domain's frontier_size by delta bytes,
// returning the new size. Used by frontier.Manager after each append to a
// domain's frontier file.
func (c *Client) IncrFrontierSize(ctx context.Context, registeredDomain string, delta int64) (int64, error) {
	var newSize int64
	err := c.withRetry(ctx, "frontier_size_incr", func() error {
		var incrErr error
		newSize, incrErr = c.rdb.HIncrBy(ctx, domainKey(registeredDomain), "frontier_size", delta).Result()
		return incrErr
	})
	if err != nil {
		return 0, fmt.Errorf("datastore: incr frontier_size %q: %w", registeredDomain, err)
	}
	return newSize, nil
}

// SetFilePathIfAbsent conditionally sets file_path the first time a domain
// is created, or unconditionally when forced=true (the resharder is the
// only caller allowed to pass forced=true, per §5).
func (c *Client) SetFilePathIfAbsent(ctx context.Context, registeredDomain, filePath string, forced bool) error {
	return c.withRetry(ctx, "file_path_set", func() error {
		if forced {
			return c.rdb.HSet(ctx, domainKey(registeredDomain), "file_path", filePath).Err()
		}
		return c.rdb.HSetNX(ctx, domainKey(registeredDomain), "file_path", filePath).Err()
	})
}

// SetRobots persists a freshly fetched (or negatively cached) robots.txt
// entry for a domain.
func (c *Client) SetRobots(ctx context.Context, registeredDomain, robotsTxt string, expires time.Time) error {
	return c.withRetry(ctx, "robots_set", func() error {
		return c.rdb.HSet(ctx, domainKey(registeredDomain), map[string]any{
			"robots_txt":     robotsTxt,
			"robots_expires": expires.Unix(),
		}).Err()
	})
}

// SetExcluded marks a domain as manually excluded (or un-excludes it).
func (c *Client) SetExcluded(ctx context.Context, registeredDomain string, excluded bool) error {
	return c.withRetry(ctx, "excluded_set", func() error {
		return c.rdb.HSet(ctx, domainKey(registeredDomain), "is_excluded", boolToInt(excluded)).Err()
	})
}

// MarkSeeded sets is_seeded=true for a domain; only the seed loader calls this.
func (c *Client) MarkSeeded(ctx context.Context, registeredDomain string) error {
	return c.withRetry(ctx, "seeded_mark", func() error {
		return c.rdb.HSet(ctx, domainKey(registeredDomain), "is_seeded", 1).Err()
	})
}

// ScanDomains returns every registered domain with a metadata hash, via
// cursor-based SCAN so the resharder never blocks Redis with a KEYS call.
func (c *Client) ScanDomains(ctx context.Context) ([]string, error) {
	var out []string
	var cursor uint64
	for {
		var keys []string
		var err error
		keys, cursor, err = c.rdb.Scan(ctx, cursor, "domain:*", 500).Result()
		if err != nil {
			return nil, fmt.Errorf("datastore: scan domains: %w", err)
		}
		for _, k := range keys {
			out = append(out, k[len("domain:"):])
		}
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func hashToDomain(name string, fields map[string]string) *domain.Domain {
	d := &domain.Domain{Name: name}
	d.FilePath = fields["file_path"]
	d.FrontierOffset = parseInt64(fields["frontier_offset"])
	d.FrontierSize = parseInt64(fields["frontier_size"])
	d.NextFetchTime = time.Unix(parseInt64(fields["next_fetch_time"]), 0)
	d.RobotsTxt = fields["robots_txt"]
	d.RobotsExpires = time.Unix(parseInt64(fields["robots_expires"]), 0)
	d.IsExcluded = fields["is_excluded"] == "1"
	d.IsSeeded = fields["is_seeded"] == "1"
	return d
}

func parseInt64(s string) int64 {
	var v int64
	_, _ = fmt.Sscanf(s, "%d", &v)
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
