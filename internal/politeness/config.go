package politeness

import "time"

// Config holds the tunables for the politeness engine: crawl-delay bounds,
// robots cache TTLs, and fetch behavior.
type Config struct {
	UserAgent string

	DefaultCrawlDelay time.Duration
	MinCrawlDelay     time.Duration
	MaxCrawlDelay     time.Duration

	RobotsTTL         time.Duration
	RobotsNegativeTTL time.Duration
	RobotsFetchDeadline time.Duration

	SeededOnly bool
}

// WithDefaults fills zero-valued fields with the documented defaults.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "corecrawl"
	}
	if c.DefaultCrawlDelay <= 0 {
		c.DefaultCrawlDelay = 1 * time.Second
	}
	if c.MinCrawlDelay <= 0 {
		c.MinCrawlDelay = 1 * time.Second
	}
	if c.MaxCrawlDelay <= 0 {
		c.MaxCrawlDelay = 60 * time.Second
	}
	if c.RobotsTTL <= 0 {
		c.RobotsTTL = 24 * time.Hour
	}
	if c.RobotsNegativeTTL <= 0 {
		c.RobotsNegativeTTL = 1 * time.Hour
	}
	if c.RobotsFetchDeadline <= 0 {
		c.RobotsFetchDeadline = 10 * time.Second
	}
	return c
}

func (c Config) bound(d time.Duration) time.Duration {
	if d < c.MinCrawlDelay {
		return c.MinCrawlDelay
	}
	if d > c.MaxCrawlDelay {
		return c.MaxCrawlDelay
	}
	return d
}
