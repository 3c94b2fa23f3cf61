package politeness_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/datastore"
	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/politeness"
)

type fakeDomainStore struct {
	mu      sync.Mutex
	domains map[string]*domain.Domain
}

func newFakeDomainStore() *fakeDomainStore {
	return &fakeDomainStore{domains: make(map[string]*domain.Domain)}
}

func (f *fakeDomainStore) GetDomain(_ context.Context, registeredDomain string) (*domain.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.domains[registeredDomain]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDomainStore) SetRobots(_ context.Context, registeredDomain, robotsTxt string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.domains[registeredDomain]
	if !ok {
		d = &domain.Domain{Name: registeredDomain}
		f.domains[registeredDomain] = d
	}
	d.RobotsTxt = robotsTxt
	d.RobotsExpires = expires
	return nil
}

func (f *fakeDomainStore) put(d *domain.Domain) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains[d.Name] = d
}

func TestIsURLAllowedDeniesExcludedDomain(t *testing.T) {
	store := newFakeDomainStore()
	store.put(&domain.Domain{Name: "example.com", IsExcluded: true})

	robots := politeness.NewRobotsEngine(store, http.DefaultClient, politeness.Config{}, nil)
	engine := politeness.NewPolicyEngine(store, robots, politeness.Config{})

	allowed, err := engine.IsURLAllowed(context.Background(), "http://example.com/a")
	assert.False(t, allowed)
	assert.ErrorIs(t, err, politeness.ErrExcluded)
}

func TestIsURLAllowedDeniesUnseededUnderSeededOnly(t *testing.T) {
	store := newFakeDomainStore()
	store.put(&domain.Domain{Name: "example.com", IsSeeded: false})

	robots := politeness.NewRobotsEngine(store, http.DefaultClient, politeness.Config{}, nil)
	engine := politeness.NewPolicyEngine(store, robots, politeness.Config{SeededOnly: true})

	allowed, err := engine.IsURLAllowed(context.Background(), "http://example.com/a")
	assert.False(t, allowed)
	assert.ErrorIs(t, err, politeness.ErrNotSeeded)
}

func TestIsURLAllowedConsultsCachedRobotsDisallow(t *testing.T) {
	store := newFakeDomainStore()
	store.put(&domain.Domain{
		Name:          "example.com",
		RobotsTxt:     "User-agent: *\nDisallow: /private\n",
		RobotsExpires: time.Now().Add(time.Hour),
	})

	robots := politeness.NewRobotsEngine(store, http.DefaultClient, politeness.Config{}, nil)
	engine := politeness.NewPolicyEngine(store, robots, politeness.Config{})

	allowed, err := engine.IsURLAllowed(context.Background(), "http://example.com/private/x")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = engine.IsURLAllowed(context.Background(), "http://example.com/public")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsAllowedFetchesAndCachesRobotsOnMiss(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /blocked\n"))
	}))
	defer srv.Close()

	store := newFakeDomainStore()
	registeredDomain := srv.Listener.Addr().String()
	robots := politeness.NewRobotsEngine(store, srv.Client(), politeness.Config{RobotsFetchDeadline: time.Second}, nil)

	allowed, err := robots.Allowed(context.Background(), registeredDomain, "/blocked")
	require.NoError(t, err)
	assert.False(t, allowed)

	d, err := store.GetDomain(context.Background(), registeredDomain)
	require.NoError(t, err)
	assert.Contains(t, d.RobotsTxt, "Disallow: /blocked")
}

func TestRobotsFetchFailureDefaultsToAllow(t *testing.T) {
	store := newFakeDomainStore()
	robots := politeness.NewRobotsEngine(store, http.DefaultClient, politeness.Config{RobotsFetchDeadline: 50 * time.Millisecond}, nil)

	allowed, err := robots.Allowed(context.Background(), "127.0.0.1:1", "/a")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNextFetchTimeRespectsMinAndMaxBounds(t *testing.T) {
	store := newFakeDomainStore()
	robots := politeness.NewRobotsEngine(store, http.DefaultClient, politeness.Config{}, nil)
	cfg := politeness.Config{DefaultCrawlDelay: 500 * time.Millisecond, MinCrawlDelay: time.Second, MaxCrawlDelay: 2 * time.Second}
	engine := politeness.NewPolicyEngine(store, robots, cfg)

	before := time.Now()
	next := engine.NextFetchTime(context.Background(), "example.com")
	assert.True(t, next.Sub(before) >= time.Second)
	assert.True(t, next.Sub(before) <= 2*time.Second+100*time.Millisecond)
}

func TestIsDomainAllowedInPrincipleUnknownDomainSeededOnly(t *testing.T) {
	store := newFakeDomainStore()
	robots := politeness.NewRobotsEngine(store, http.DefaultClient, politeness.Config{}, nil)
	engine := politeness.NewPolicyEngine(store, robots, politeness.Config{SeededOnly: true})

	allowed, err := engine.IsDomainAllowedInPrinciple(context.Background(), "never-seen.com")
	require.NoError(t, err)
	assert.False(t, allowed)
}
