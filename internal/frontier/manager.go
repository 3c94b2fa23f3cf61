// Package frontier is the central data-structure glue: it owns per-domain
// file offsets and ready-queue membership, and exposes the enqueue/claim/
// release operations the fetcher pool drives its loop with.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jonesrussell/corecrawl/internal/datastore"
	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/frontierfile"
	"github.com/jonesrussell/corecrawl/internal/logger"
	"github.com/jonesrussell/corecrawl/internal/metrics"
	"github.com/jonesrussell/corecrawl/internal/politeness"
	"github.com/jonesrussell/corecrawl/internal/urlnorm"
)

// ErrExhausted is returned by TakeNextURL when a claimed domain's frontier
// file has no more unread lines.
var ErrExhausted = errors.New("frontier: domain exhausted")

// Link is one candidate URL discovered on a page, prior to normalization.
type Link struct {
	URL   string
	Depth int
}

// candidate is a link that survived normalization and the in-principle
// domain-allowed check, awaiting the bloom dedup pass.
type candidate struct {
	normalized string
	domain     string
	depth      int
}

// Manager composes the datastore client, the frontier file store, and the
// politeness policy engine into the enqueue/claim/take/release operations
// specified for the frontier manager (§4.5). It is the sole caller of the
// datastore's dedup (bloom) operations.
type Manager struct {
	store   *datastore.Client
	files   *frontierfile.Store
	policy  *politeness.PolicyEngine
	metrics *metrics.Metrics
	log     logger.Interface

	shards        int
	maxURLLen     int
	maxDepth      int
	maxLinksBatch int
}

// Config configures shard count and per-enqueue batch limits. MaxDepth 0
// means unlimited.
type Config struct {
	Shards        int
	MaxURLLen     int
	MaxDepth      int
	MaxLinksBatch int
}

// WithDefaults fills zero-valued fields with documented defaults.
func (c Config) WithDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 1
	}
	if c.MaxURLLen <= 0 {
		c.MaxURLLen = urlnorm.MaxURLLen
	}
	if c.MaxLinksBatch <= 0 {
		c.MaxLinksBatch = 1000
	}
	return c
}

// NewManager constructs a Manager.
func NewManager(
	store *datastore.Client,
	files *frontierfile.Store,
	policy *politeness.PolicyEngine,
	cfg Config,
	m *metrics.Metrics,
	log logger.Interface,
) *Manager {
	cfg = cfg.WithDefaults()
	return &Manager{
		store:         store,
		files:         files,
		policy:        policy,
		metrics:       m,
		log:           log,
		shards:        cfg.Shards,
		maxURLLen:     cfg.MaxURLLen,
		maxDepth:      cfg.MaxDepth,
		maxLinksBatch: cfg.MaxLinksBatch,
	}
}

// Shard returns the shard a registered domain is assigned to: hash(domain)
// mod N, per §4.5 step 6.
func (m *Manager) Shard(registeredDomain string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(registeredDomain))
	return int(h.Sum32() % uint32(m.shards))
}

// Enqueue normalizes, dedups, and persists links, grouping survivors by
// registered domain and appending each group to that domain's frontier file
// on its shard (§4.5). When seed is true, every domain that receives a link
// is marked seeded.
func (m *Manager) Enqueue(ctx context.Context, links []Link, seed bool) error {
	candidates := make([]candidate, 0, len(links))
	for _, l := range links {
		if len(candidates) >= m.maxLinksBatch {
			if m.log != nil {
				m.log.Warn("enqueue batch truncated at cap", "cap", m.maxLinksBatch)
			}
			break
		}
		if m.maxDepth > 0 && l.Depth > m.maxDepth {
			continue
		}
		norm, err := urlnorm.Normalize(l.URL, m.maxURLLen)
		if err != nil {
			continue
		}
		registeredDomain, err := urlnorm.RegisteredDomainFromURL(norm)
		if err != nil {
			continue
		}
		allowed, err := m.policy.IsDomainAllowedInPrinciple(ctx, registeredDomain)
		if err != nil && m.log != nil {
			m.log.Warn("policy check failed during enqueue", "domain", registeredDomain, "error", err)
		}
		if !allowed {
			continue
		}
		candidates = append(candidates, candidate{normalized: norm, domain: registeredDomain, depth: l.Depth})
	}
	if len(candidates) == 0 {
		return nil
	}

	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.normalized
	}
	novelMask, err := m.store.BloomAddNovel(ctx, urls)
	if err != nil {
		return fmt.Errorf("frontier: dedup: %w", err)
	}

	novel := candidates[:0:0]
	for i, c := range candidates {
		if !novelMask[i] {
			continue
		}
		novel = append(novel, c)
	}
	if m.metrics != nil {
		m.metrics.FrontierDroppedBloomTotal.Add(float64(len(candidates) - len(novel)))
	}
	if len(novel) == 0 {
		return nil
	}

	byDomain := make(map[string][]candidate)
	for _, c := range novel {
		byDomain[c.domain] = append(byDomain[c.domain], c)
	}

	now := time.Now()
	for registeredDomain, group := range byDomain {
		if err := m.appendDomain(ctx, registeredDomain, group, now, seed); err != nil {
			if m.log != nil {
				m.log.Warn("append domain failed", "domain", registeredDomain, "error", err)
			}
			continue
		}
		if m.metrics != nil {
			m.metrics.FrontierEnqueuedTotal.Add(float64(len(group)))
		}
	}
	return nil
}

func (m *Manager) appendDomain(
	ctx context.Context,
	registeredDomain string,
	group []candidate,
	now time.Time,
	seed bool,
) error {
	shard := m.Shard(registeredDomain)

	existing, err := m.store.GetDomain(ctx, registeredDomain)
	filePath := ""
	if err == nil {
		filePath = existing.FilePath
	}
	if filePath == "" {
		filePath = frontierfile.FilePath(shard, registeredDomain)
	}
	if setErr := m.store.SetFilePathIfAbsent(ctx, registeredDomain, filePath, false); setErr != nil {
		return fmt.Errorf("set file path: %w", setErr)
	}

	lines := make([]string, 0, len(group))
	for _, c := range group {
		lines = append(lines, frontierfile.EncodeLine(c.normalized, c.depth, 0, now))
	}
	written, err := m.files.AppendMany(filePath, lines)
	if err != nil {
		return fmt.Errorf("append frontier file: %w", err)
	}
	if _, err := m.store.IncrFrontierSize(ctx, registeredDomain, written); err != nil {
		return fmt.Errorf("incr frontier size: %w", err)
	}
	if seed {
		if err := m.store.MarkSeeded(ctx, registeredDomain); err != nil {
			return fmt.Errorf("mark seeded: %w", err)
		}
	}
	if err := m.store.EnsureReady(ctx, shard, registeredDomain, now); err != nil {
		return fmt.Errorf("ensure ready: %w", err)
	}
	return nil
}

// ClaimNext pops the next eligible domain for shard, or returns (nil, nil)
// if none is currently eligible.
func (m *Manager) ClaimNext(ctx context.Context, shard int) (*domain.ClaimedDomain, error) {
	return m.store.ClaimNext(ctx, shard)
}

// ReshardInProgress reports whether the resharder currently owns exclusive
// write access to frontier files and ready sets; fetchers must observe this
// between claims and pause rather than claim a domain mid-move (§4.9).
func (m *Manager) ReshardInProgress(ctx context.Context) (bool, error) {
	return m.store.ReshardInProgress(ctx)
}

// TakeNextURL reads and advances one URL entry from a claimed domain's
// frontier file. Returns ErrExhausted if the domain has no unread lines.
// A frontier file that is missing even though the domain's metadata says
// it has unread bytes is an invariant violation: the domain is quarantined
// (marked excluded, data left on disk for inspection) and reported as
// exhausted so the crawl continues on other domains.
func (m *Manager) TakeNextURL(ctx context.Context, claimed *domain.ClaimedDomain) (rawURL string, depth int, err error) {
	if claimed.FrontierOffset >= claimed.FrontierSize {
		return "", 0, ErrExhausted
	}
	line, next, err := m.files.ReadLineAt(claimed.FilePath, claimed.FrontierOffset)
	if err != nil {
		if errors.Is(err, frontierfile.ErrNoLineYet) {
			return "", 0, ErrExhausted
		}
		if errors.Is(err, frontierfile.ErrFileMissing) {
			m.quarantine(ctx, claimed)
			return "", 0, ErrExhausted
		}
		if errors.Is(err, frontierfile.ErrLineTooLong) {
			// Over-long line: skip it by advancing past it, like a malformed one.
			if m.log != nil {
				m.log.Warn("skipping over-long frontier line", "domain", claimed.Domain, "error", err)
			}
			claimed.FrontierOffset = next
			return "", 0, ErrExhausted
		}
		return "", 0, fmt.Errorf("frontier: read line: %w", err)
	}
	rawURL, depth, decErr := decodeLine(line)
	if decErr != nil {
		// Malformed line: skip it by advancing past it, per the
		// skip-and-log rule for unreadable lines.
		if m.log != nil {
			m.log.Warn("skipping malformed frontier line", "domain", claimed.Domain, "error", decErr)
		}
		claimed.FrontierOffset = next
		return "", 0, ErrExhausted
	}
	claimed.FrontierOffset = next
	return rawURL, depth, nil
}

// quarantine marks a domain excluded after an invariant violation, and
// zeroes the claimed view's unread window so the subsequent Release drops
// it from the ready set instead of re-queueing a broken domain forever.
func (m *Manager) quarantine(ctx context.Context, claimed *domain.ClaimedDomain) {
	if m.log != nil {
		m.log.Error("frontier file missing for domain with unread bytes; quarantining",
			"domain", claimed.Domain, "file_path", claimed.FilePath,
			"frontier_offset", claimed.FrontierOffset, "frontier_size", claimed.FrontierSize)
	}
	if err := m.store.SetExcluded(ctx, claimed.Domain, true); err != nil && m.log != nil {
		m.log.Error("quarantine failed", "domain", claimed.Domain, "error", err)
	}
	claimed.FrontierOffset = claimed.FrontierSize
}

// Release persists the claimed domain's new offset and either re-queues it
// (if it still has unread URLs) or leaves it drained.
func (m *Manager) Release(ctx context.Context, claimed *domain.ClaimedDomain, nextFetchTime time.Time) error {
	shard := m.Shard(claimed.Domain)
	stillHasWork := claimed.FrontierOffset < claimed.FrontierSize
	if err := m.store.Release(ctx, shard, claimed.Domain, claimed.FrontierOffset, nextFetchTime, stillHasWork); err != nil {
		return fmt.Errorf("frontier: release %q: %w", claimed.Domain, err)
	}
	return nil
}

// ReadySize reports the current ready-set size for shard, for the
// frontier_ready_size gauge.
func (m *Manager) ReadySize(ctx context.Context, shard int) (int64, error) {
	return m.store.ReadySize(ctx, shard)
}
