// Package politeness decides whether and when a URL may be fetched:
// robots.txt acquisition/caching, manual exclusions, seeded-only policy,
// and per-domain crawl-delay bounds.
package politeness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/jonesrussell/corecrawl/internal/datastore"
	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/logger"
	"github.com/jonesrussell/corecrawl/internal/metrics"
	"github.com/jonesrussell/corecrawl/internal/urlnorm"
)

const maxRobotsBodyBytes = 512 * 1024

// DomainStore is the subset of internal/datastore the politeness engine
// needs: reading/writing a domain's cached robots.txt and exclusion state.
type DomainStore interface {
	GetDomain(ctx context.Context, registeredDomain string) (*domain.Domain, error)
	SetRobots(ctx context.Context, registeredDomain, robotsTxt string, expires time.Time) error
}

// RobotsEngine fetches, parses, and caches robots.txt per registered
// domain. Cache entries are persisted through DomainStore rather than held
// only in local memory, so a second fetcher process sees the first
// process's fetch. In-flight fetches for the same domain are coalesced with
// singleflight so only one network request is outstanding at a time.
type RobotsEngine struct {
	store      DomainStore
	httpClient *http.Client
	cfg        Config
	metrics    *metrics.Metrics
	log        logger.Interface

	group singleflight.Group
}

// NewRobotsEngine constructs a RobotsEngine.
func NewRobotsEngine(store DomainStore, httpClient *http.Client, cfg Config, log logger.Interface) *RobotsEngine {
	return &RobotsEngine{
		store:      store,
		httpClient: httpClient,
		cfg:        cfg.WithDefaults(),
		log:        log,
	}
}

// SetMetrics attaches the process metrics so cache hits/misses and fetch
// errors are counted. Safe to leave unset.
func (e *RobotsEngine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// parsedEntry is the in-memory parse of a domain's cached robots.txt text;
// it is recomputed from the persisted text/expiry on every call rather than
// cached locally, since the persisted copy is the source of truth across
// processes.
type parsedEntry struct {
	data     *robotstxt.RobotsData
	allowAll bool
}

// Allowed reports whether path is allowed for registeredDomain under the
// configured user-agent, fetching/parsing/caching robots.txt as needed.
// Default on any failure is allow.
func (e *RobotsEngine) Allowed(ctx context.Context, registeredDomain, path string) (bool, error) {
	entry, err := e.entryFor(ctx, registeredDomain)
	if err != nil {
		return true, err
	}
	if entry.allowAll {
		return true, nil
	}
	return entry.data.TestAgent(path, e.cfg.UserAgent), nil
}

// CrawlDelay returns the robots-specified crawl-delay for registeredDomain,
// or 0 if none is specified.
func (e *RobotsEngine) CrawlDelay(ctx context.Context, registeredDomain string) time.Duration {
	entry, err := e.entryFor(ctx, registeredDomain)
	if err != nil || entry.allowAll || entry.data == nil {
		return 0
	}
	group := entry.data.FindGroup(e.cfg.UserAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// entryFor returns the fresh cached entry for registeredDomain, refetching
// through the datastore-backed cache if expired.
func (e *RobotsEngine) entryFor(ctx context.Context, registeredDomain string) (parsedEntry, error) {
	d, err := e.store.GetDomain(ctx, registeredDomain)
	if err == nil && d.RobotsExpires.After(time.Now()) {
		if e.metrics != nil {
			e.metrics.RobotsCacheHitsTotal.Inc()
		}
		return parseCached(d.RobotsTxt), nil
	}
	if err != nil && !errors.Is(err, datastore.ErrNotFound) {
		return parsedEntry{allowAll: true}, fmt.Errorf("politeness: get domain %q: %w", registeredDomain, err)
	}
	if e.metrics != nil {
		e.metrics.RobotsCacheMissesTotal.Inc()
	}

	res, fetchErr, shared := e.group.Do(registeredDomain, func() (any, error) {
		return e.fetchAndCache(ctx, registeredDomain)
	})
	if fetchErr != nil {
		return parsedEntry{allowAll: true}, fetchErr
	}
	if e.log != nil && shared {
		e.log.Debug("robots fetch coalesced", "domain", registeredDomain)
	}
	return res.(parsedEntry), nil
}

func (e *RobotsEngine) fetchAndCache(ctx context.Context, registeredDomain string) (parsedEntry, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.RobotsFetchDeadline)
	defer cancel()

	robotsURL := "https://" + registeredDomain + "/robots.txt"
	body, status, err := e.doFetch(fetchCtx, robotsURL)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RobotsFetchErrorsTotal.Inc()
		}
		e.persist(ctx, registeredDomain, "", e.cfg.RobotsNegativeTTL)
		return parsedEntry{allowAll: true}, nil
	}

	if status >= 500 || status == 429 {
		if e.metrics != nil {
			e.metrics.RobotsFetchErrorsTotal.Inc()
		}
		e.persist(ctx, registeredDomain, "", e.cfg.RobotsNegativeTTL)
		return parsedEntry{allowAll: true}, nil
	}
	if status < 200 || status >= 300 {
		// 4xx other than 429: no restrictions, normal TTL.
		e.persist(ctx, registeredDomain, "", e.cfg.RobotsTTL)
		return parsedEntry{allowAll: true}, nil
	}

	robots, parseErr := robotstxt.FromBytes(body)
	if parseErr != nil {
		e.persist(ctx, registeredDomain, "", e.cfg.RobotsTTL)
		return parsedEntry{allowAll: true}, nil
	}

	e.persist(ctx, registeredDomain, string(body), e.cfg.RobotsTTL)
	return parsedEntry{data: robots}, nil
}

func (e *RobotsEngine) persist(ctx context.Context, registeredDomain, robotsTxt string, ttl time.Duration) {
	if err := e.store.SetRobots(ctx, registeredDomain, robotsTxt, time.Now().Add(ttl)); err != nil && e.log != nil {
		e.log.Warn("persist robots cache entry failed", "domain", registeredDomain, "error", err)
	}
}

func (e *RobotsEngine) doFetch(ctx context.Context, robotsURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("politeness: build robots request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("politeness: fetch robots: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("politeness: read robots body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func parseCached(robotsTxt string) parsedEntry {
	if robotsTxt == "" {
		return parsedEntry{allowAll: true}
	}
	robots, err := robotstxt.FromBytes([]byte(robotsTxt))
	if err != nil {
		return parsedEntry{allowAll: true}
	}
	return parsedEntry{data: robots}
}

// registeredDomainOf is a small convenience wrapper kept here so callers in
// this package share one import of urlnorm.
func registeredDomainOf(rawURL string) (string, error) {
	return urlnorm.RegisteredDomainFromURL(rawURL)
}
