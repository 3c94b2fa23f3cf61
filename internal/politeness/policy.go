package politeness

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jonesrussell/corecrawl/internal/datastore"
)

// ErrExcluded is returned by IsURLAllowed when a domain is manually excluded.
var ErrExcluded = errors.New("politeness: domain excluded")

// ErrNotSeeded is returned by IsURLAllowed when seeded-only policy is active and
// the domain did not originate from a seed.
var ErrNotSeeded = errors.New("politeness: domain not seeded")

// PolicyEngine composes manual exclusion, seeded-only policy, and the
// robots.txt engine into the single is_url_allowed decision, and computes
// each domain's next eligible fetch time.
type PolicyEngine struct {
	store   DomainStore
	robots  *RobotsEngine
	cfg     Config
}

// NewPolicyEngine constructs a PolicyEngine.
func NewPolicyEngine(store DomainStore, robots *RobotsEngine, cfg Config) *PolicyEngine {
	return &PolicyEngine{store: store, robots: robots, cfg: cfg.WithDefaults()}
}

// IsURLAllowed implements §4.4's is_url_allowed: manual exclusion, then
// seeded-only policy, then robots.txt. A URL whose registered domain cannot
// be extracted is denied; a datastore or robots.txt failure defaults to
// allow.
func (p *PolicyEngine) IsURLAllowed(ctx context.Context, rawURL string) (bool, error) {
	registeredDomain, err := registeredDomainOf(rawURL)
	if err != nil {
		return false, fmt.Errorf("politeness: registered domain: %w", err)
	}

	d, err := p.store.GetDomain(ctx, registeredDomain)
	if err != nil && !errors.Is(err, datastore.ErrNotFound) {
		return true, fmt.Errorf("politeness: get domain %q: %w", registeredDomain, err)
	}
	if err == nil {
		if d.IsExcluded {
			return false, ErrExcluded
		}
		if p.cfg.SeededOnly && !d.IsSeeded {
			return false, ErrNotSeeded
		}
	} else if p.cfg.SeededOnly {
		return false, ErrNotSeeded
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true, fmt.Errorf("politeness: parse url: %w", err)
	}

	allowed, robotsErr := p.robots.Allowed(ctx, registeredDomain, u.Path)
	if robotsErr != nil {
		// Default on robots failure is allow, per §4.4.
		return true, nil
	}
	return allowed, nil
}

// IsDomainAllowedInPrinciple checks only exclusion/seeded-only, without
// consulting robots.txt -- used by the frontier manager at enqueue time
// (§4.5 step 3), where per-URL robots consultation is deferred to fetch time.
func (p *PolicyEngine) IsDomainAllowedInPrinciple(ctx context.Context, registeredDomain string) (bool, error) {
	d, err := p.store.GetDomain(ctx, registeredDomain)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return !p.cfg.SeededOnly, nil
		}
		return true, fmt.Errorf("politeness: get domain %q: %w", registeredDomain, err)
	}
	if d.IsExcluded {
		return false, nil
	}
	if p.cfg.SeededOnly && !d.IsSeeded {
		return false, nil
	}
	return true, nil
}

// NextFetchTime computes the next eligible fetch time for registeredDomain:
// the larger of "now + default crawl delay" and "now + robots crawl-delay",
// bounded to [MinCrawlDelay, MaxCrawlDelay].
func (p *PolicyEngine) NextFetchTime(ctx context.Context, registeredDomain string) time.Time {
	delay := p.cfg.DefaultCrawlDelay
	if robotsDelay := p.robots.CrawlDelay(ctx, registeredDomain); robotsDelay > delay {
		delay = robotsDelay
	}
	return time.Now().Add(p.cfg.bound(delay))
}
