// Package fetcherpool drives the per-shard fetcher loop (§4.6): claim a
// ready domain, read its next URL, check politeness, fetch it over HTTP,
// hand HTML results to the bounded parser queue, and release the domain
// with its next eligible fetch time.
package fetcherpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/frontier"
	"github.com/jonesrussell/corecrawl/internal/logger"
	"github.com/jonesrussell/corecrawl/internal/metrics"
	"github.com/jonesrussell/corecrawl/internal/parser"
	"github.com/jonesrussell/corecrawl/internal/urlnorm"
)

// maxResponseBodyBytes bounds a single fetched page, mirroring the
// teacher's worker.go response-size guard.
const maxResponseBodyBytes = 10 * 1024 * 1024

const claimRetryDelay = 100 * time.Millisecond

// FrontierClaimer is the subset of *frontier.Manager the pool needs.
type FrontierClaimer interface {
	ClaimNext(ctx context.Context, shard int) (*domain.ClaimedDomain, error)
	TakeNextURL(ctx context.Context, claimed *domain.ClaimedDomain) (rawURL string, depth int, err error)
	Release(ctx context.Context, claimed *domain.ClaimedDomain, nextFetchTime time.Time) error
	ReshardInProgress(ctx context.Context) (bool, error)
}

// Politeness is the subset of *politeness.PolicyEngine the pool needs.
type Politeness interface {
	IsURLAllowed(ctx context.Context, rawURL string) (bool, error)
	NextFetchTime(ctx context.Context, registeredDomain string) time.Time
}

// VisitedRecorder persists the outcome of every attempted URL.
type VisitedRecorder interface {
	RecordVisited(ctx context.Context, hash16 string, rec *domain.VisitedRecord) error
}

// Config configures a Pool's concurrency and fetch behavior.
type Config struct {
	Shard          int
	WorkerCount    int
	UserAgent      string
	FetchDeadline  time.Duration
	MaxRedirects   int
	ShutdownGrace  time.Duration
}

// WithDefaults fills zero-valued fields with the documented defaults.
func (c Config) WithDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 500
	}
	if c.FetchDeadline <= 0 {
		c.FetchDeadline = 30 * time.Second
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 10
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
	return c
}

// Pool is a per-shard fetcher worker pool: Config.WorkerCount cooperative
// goroutines sharing one claim/fetch/release loop (§4.6).
type Pool struct {
	frontier   FrontierClaimer
	politeness Politeness
	visited    VisitedRecorder
	queue      *parser.Queue
	metrics    *metrics.Metrics
	log        logger.Interface
	httpClient *http.Client
	cfg        Config
}

// New constructs a Pool.
func New(
	fc FrontierClaimer,
	pol Politeness,
	visited VisitedRecorder,
	queue *parser.Queue,
	m *metrics.Metrics,
	log logger.Interface,
	cfg Config,
) *Pool {
	cfg = cfg.WithDefaults()
	client := &http.Client{
		Timeout:       cfg.FetchDeadline,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}
	return &Pool{
		frontier:   fc,
		politeness: pol,
		visited:    visited,
		queue:      queue,
		metrics:    m,
		log:        log,
		httpClient: client,
		cfg:        cfg,
	}
}

// Start launches cfg.WorkerCount worker goroutines and blocks until ctx is
// cancelled, then waits (bounded by cfg.ShutdownGrace) for in-flight
// fetches to finish.
func (p *Pool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if p.claimAndProcess(ctx, workerID) {
			return
		}
	}
}

// claimAndProcess runs one iteration of the loop in §4.6's pseudocode.
// Returns true if the worker should exit (context cancelled).
func (p *Pool) claimAndProcess(ctx context.Context, workerID int) bool {
	if resharding, err := p.frontier.ReshardInProgress(ctx); err == nil && resharding {
		return p.sleepOrCancel(ctx)
	}

	claimed, err := p.frontier.ClaimNext(ctx, p.cfg.Shard)
	if err != nil {
		if p.log != nil {
			p.log.Error("claim failed", "worker_id", workerID, "shard", p.cfg.Shard, "error", err)
		}
		return p.sleepOrCancel(ctx)
	}
	if claimed == nil {
		return p.sleepOrCancel(ctx)
	}

	p.processDomain(ctx, claimed)
	return false
}

func (p *Pool) sleepOrCancel(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(claimRetryDelay):
		return false
	}
}

func (p *Pool) processDomain(ctx context.Context, claimed *domain.ClaimedDomain) {
	now := time.Now()

	rawURL, depth, err := p.frontier.TakeNextURL(ctx, claimed)
	if errors.Is(err, frontier.ErrExhausted) {
		p.release(ctx, claimed, now)
		return
	}
	if err != nil {
		if p.log != nil {
			p.log.Error("take next url failed", "domain", claimed.Domain, "error", err)
		}
		p.release(ctx, claimed, now)
		return
	}

	allowed, allowedErr := p.politeness.IsURLAllowed(ctx, rawURL)
	if allowedErr != nil && p.log != nil {
		p.log.Warn("politeness check returned an error", "url", rawURL, "error", allowedErr)
	}
	if !allowed {
		p.release(ctx, claimed, now)
		return
	}

	p.fetchAndDispatch(ctx, claimed, rawURL, depth)
}

func (p *Pool) fetchAndDispatch(ctx context.Context, claimed *domain.ClaimedDomain, rawURL string, depth int) {
	// On shutdown, the in-flight request gets up to ShutdownGrace to finish
	// before it is aborted, rather than being cut off the instant ctx falls.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FetchDeadline)
	defer cancel()
	stopGrace := context.AfterFunc(ctx, func() {
		graceTimer := time.NewTimer(p.cfg.ShutdownGrace)
		defer graceTimer.Stop()
		select {
		case <-graceTimer.C:
			cancel()
		case <-fetchCtx.Done():
		}
	})
	defer stopGrace()

	start := time.Now()
	result, fetchErr := p.fetchPage(fetchCtx, rawURL)
	if p.metrics != nil {
		p.metrics.FetchLatencySeconds.Observe(time.Since(start).Seconds())
	}

	next := p.politeness.NextFetchTime(ctx, claimed.Domain)
	if next.Before(time.Now()) {
		next = time.Now()
	}
	if ctx.Err() != nil {
		// Shutdown mid-fetch: release without advancing next_fetch_time so
		// the domain is immediately claimable after restart.
		next = time.Now()
	}

	if fetchErr != nil {
		p.recordError(ctx, rawURL, fetchErr)
		if p.metrics != nil {
			p.metrics.FetchErrorsTotal.WithLabelValues(errorKind(fetchErr)).Inc()
		}
		p.release(ctx, claimed, next)
		return
	}

	p.release(ctx, claimed, next)
	if p.metrics != nil {
		p.metrics.IncPagesFetched()
	}

	if result.StatusCode == http.StatusOK && isHTML(result.Headers) {
		result.Domain = claimed.Domain
		result.Depth = depth
		if pushErr := p.queue.Push(ctx, result); pushErr != nil && p.log != nil {
			p.log.Warn("parser queue push failed", "url", rawURL, "error", pushErr)
		}
		return
	}

	p.recordStatus(ctx, rawURL, result)
}

func (p *Pool) release(ctx context.Context, claimed *domain.ClaimedDomain, nextFetchTime time.Time) {
	if ctx.Err() != nil {
		// Still release held claims during shutdown; a cancelled ctx would
		// abort the datastore round trip and strand the domain until the
		// stale-claim sweep finds it.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := p.frontier.Release(ctx, claimed, nextFetchTime); err != nil && p.log != nil {
		p.log.Error("release failed", "domain", claimed.Domain, "error", err)
	}
}

func (p *Pool) fetchPage(ctx context.Context, rawURL string) (domain.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("fetcherpool: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("fetcherpool: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("fetcherpool: read body: %w", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return domain.FetchResult{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

func (p *Pool) recordError(ctx context.Context, rawURL string, fetchErr error) {
	hash16, err := hash16Of(rawURL)
	if err != nil {
		return
	}
	rec := &domain.VisitedRecord{
		URL:        rawURL,
		StatusCode: 0,
		FetchedAt:  time.Now(),
		Error:      fetchErr.Error(),
	}
	if err := p.visited.RecordVisited(ctx, hash16, rec); err != nil && p.log != nil {
		p.log.Error("record visited (error) failed", "url", rawURL, "error", err)
	}
}

func (p *Pool) recordStatus(ctx context.Context, rawURL string, result domain.FetchResult) {
	hash16, err := hash16Of(rawURL)
	if err != nil {
		return
	}
	rec := &domain.VisitedRecord{
		URL:        rawURL,
		StatusCode: result.StatusCode,
		FetchedAt:  time.Now(),
	}
	if err := p.visited.RecordVisited(ctx, hash16, rec); err != nil && p.log != nil {
		p.log.Error("record visited (status) failed", "url", rawURL, "error", err)
	}
}

func isHTML(h http.Header) bool {
	ct := h.Get("Content-Type")
	return strings.Contains(strings.ToLower(ct), "text/html") ||
		strings.Contains(strings.ToLower(ct), "application/xhtml+xml")
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		return "too_many_redirects"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "network"
	}
}

func hash16Of(rawURL string) (string, error) {
	h, err := urlnorm.Hash16(rawURL, urlnorm.MaxURLLen)
	if err != nil {
		return "", fmt.Errorf("fetcherpool: hash url: %w", err)
	}
	return h, nil
}
