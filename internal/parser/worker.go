package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/frontier"
	"github.com/jonesrussell/corecrawl/internal/logger"
	"github.com/jonesrussell/corecrawl/internal/metrics"
	"github.com/jonesrussell/corecrawl/internal/urlnorm"
)

// FrontierEnqueuer is the subset of *frontier.Manager a parser worker needs
// to hand back discovered links.
type FrontierEnqueuer interface {
	Enqueue(ctx context.Context, links []frontier.Link, seed bool) error
}

// VisitedRecorder persists the outcome of a parsed (or failed-to-parse) page.
type VisitedRecorder interface {
	RecordVisited(ctx context.Context, hash16 string, rec *domain.VisitedRecord) error
}

// WorkerConfig configures a worker pool's concurrency and content policy.
type WorkerConfig struct {
	WorkerCount          int
	MaxLinksBatch        int
	SaveExtractedTextOnly bool
	ContentRoot          string
}

// WithDefaults fills zero-valued fields with the documented defaults.
func (c WorkerConfig) WithDefaults() WorkerConfig {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.MaxLinksBatch <= 0 {
		c.MaxLinksBatch = 1000
	}
	if c.ContentRoot == "" {
		c.ContentRoot = "content"
	}
	return c
}

// WorkerPool runs WorkerConfig.WorkerCount goroutines popping from a shared
// Queue and running the extract/enqueue/persist pipeline (§4.7).
type WorkerPool struct {
	queue    *Queue
	frontier FrontierEnqueuer
	visited  VisitedRecorder
	content  *ContentStore
	metrics  *metrics.Metrics
	log      logger.Interface
	cfg      WorkerConfig
}

// NewWorkerPool constructs a WorkerPool.
func NewWorkerPool(
	queue *Queue,
	frontierEnqueuer FrontierEnqueuer,
	visited VisitedRecorder,
	m *metrics.Metrics,
	log logger.Interface,
	cfg WorkerConfig,
) *WorkerPool {
	cfg = cfg.WithDefaults()
	return &WorkerPool{
		queue:    queue,
		frontier: frontierEnqueuer,
		visited:  visited,
		content:  NewContentStore(cfg.ContentRoot),
		metrics:  m,
		log:      log,
		cfg:      cfg,
	}
}

// Start launches cfg.WorkerCount worker goroutines and blocks until every
// worker has returned. A worker returns as soon as ctx is cancelled or the
// queue is closed and empty; items still queued after cancellation are not
// processed.
func (p *WorkerPool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context) {
	for {
		item, err := p.queue.Pop(ctx)
		if err != nil {
			return
		}
		p.process(ctx, item)
	}
}

// process implements §4.7 steps 2-7 for one fetch result. Any parse failure
// is recorded as a successful-fetch-but-failed-parse visited record with no
// links added, per the failure semantics. An item whose URL cannot be
// normalized for hashing has no visited key, so it is logged and dropped
// without a record.
func (p *WorkerPool) process(ctx context.Context, item domain.FetchResult) {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.ParseLatencySeconds.Observe(time.Since(start).Seconds())
		}
	}()

	hash16, err := urlnorm.Hash16(item.URL, urlnorm.MaxURLLen)
	if err != nil {
		if p.log != nil {
			p.log.Error("hash url failed", "url", item.URL, "error", err)
		}
		return
	}

	baseURL, err := url.Parse(item.FinalURL)
	if err != nil {
		baseURL, err = url.Parse(item.URL)
	}
	if err != nil {
		p.recordParseFailure(ctx, item, hash16, fmt.Errorf("parser: parse base url: %w", err))
		return
	}

	decoded, err := decodeBody(item.Body, item.Headers)
	if err != nil {
		p.recordParseFailure(ctx, item, hash16, fmt.Errorf("parser: decode body: %w", err))
		return
	}

	result, err := extract(decoded, baseURL)
	if err != nil {
		p.recordParseFailure(ctx, item, hash16, err)
		return
	}

	p.enqueueLinks(ctx, item, result.Links)

	contentPath, err := p.writeContent(result.Text)
	if err != nil && p.log != nil {
		p.log.Error("content write failed after retry", "url", item.URL, "error", err)
	}

	rec := &domain.VisitedRecord{
		URL:         item.URL,
		StatusCode:  item.StatusCode,
		FetchedAt:   time.Now(),
		ContentPath: contentPath,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if recErr := p.visited.RecordVisited(ctx, hash16, rec); recErr != nil && p.log != nil {
		p.log.Error("record visited failed", "url", item.URL, "error", recErr)
	}
}

func (p *WorkerPool) recordParseFailure(ctx context.Context, item domain.FetchResult, hash16 string, parseErr error) {
	rec := &domain.VisitedRecord{
		URL:        item.URL,
		StatusCode: item.StatusCode,
		FetchedAt:  time.Now(),
		Error:      parseErr.Error(),
	}
	if err := p.visited.RecordVisited(ctx, hash16, rec); err != nil && p.log != nil {
		p.log.Error("record visited (parse failure) failed", "url", item.URL, "error", err)
	}
}

func (p *WorkerPool) enqueueLinks(ctx context.Context, item domain.FetchResult, links []string) {
	if len(links) == 0 {
		return
	}
	batch := links
	if len(batch) > p.cfg.MaxLinksBatch {
		batch = batch[:p.cfg.MaxLinksBatch]
		if p.log != nil {
			p.log.Warn("link batch truncated at cap", "url", item.URL, "cap", p.cfg.MaxLinksBatch)
		}
	}
	frontierLinks := make([]frontier.Link, len(batch))
	for i, l := range batch {
		frontierLinks[i] = frontier.Link{URL: l, Depth: item.Depth + 1}
	}
	if err := p.frontier.Enqueue(ctx, frontierLinks, false); err != nil && p.log != nil {
		p.log.Warn("enqueue links failed", "url", item.URL, "error", err)
	}
}

// writeContent hashes and writes text, retrying once on failure before
// giving up, per §4.7's "retry once, then log and continue" rule.
func (p *WorkerPool) writeContent(text string) (string, error) {
	ext := ".html"
	if p.cfg.SaveExtractedTextOnly {
		ext = ".txt"
	}
	sum := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(sum[:])

	path, err := p.content.Write(contentHash, ext, []byte(text))
	if err == nil {
		return path, nil
	}
	path, err = p.content.Write(contentHash, ext, []byte(text))
	return path, err
}
