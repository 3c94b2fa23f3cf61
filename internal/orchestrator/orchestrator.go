// Package orchestrator wires seed loading, per-shard fetcher pools, the
// parser pool, and periodic housekeeping into the single coordinating loop
// (§4.8), grounded on the ticker-plus-stopCh-plus-sync.WaitGroup shape of
// the teacher's IntervalScheduler and the SetNX-based heartbeat idiom of
// its LeaderElection.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/corecrawl/internal/datastore"
	"github.com/jonesrussell/corecrawl/internal/fetcherpool"
	"github.com/jonesrussell/corecrawl/internal/frontier"
	"github.com/jonesrussell/corecrawl/internal/logger"
	"github.com/jonesrussell/corecrawl/internal/metrics"
	"github.com/jonesrussell/corecrawl/internal/parser"
	"github.com/jonesrussell/corecrawl/internal/seeds"
)

// Config configures stop conditions and housekeeping cadence (§4.8).
type Config struct {
	Shards              int
	SeedFile            string
	MaxPages            int64
	MaxDuration         time.Duration
	ShutdownIdleGrace   time.Duration
	MetricsInterval     time.Duration
	StaleClaimInterval  time.Duration
	HeartbeatInterval   time.Duration
	StaleHeartbeatAfter time.Duration
	BloomCapacity       int64
	BloomFPR            float64
}

// WithDefaults fills zero-valued fields with the documented defaults.
func (c Config) WithDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 1
	}
	if c.ShutdownIdleGrace <= 0 {
		c.ShutdownIdleGrace = 2 * time.Minute
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 60 * time.Second
	}
	if c.StaleClaimInterval <= 0 {
		c.StaleClaimInterval = 5 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.StaleHeartbeatAfter <= 0 {
		c.StaleHeartbeatAfter = 60 * time.Second
	}
	if c.BloomCapacity <= 0 {
		c.BloomCapacity = 200_000_000
	}
	if c.BloomFPR <= 0 {
		c.BloomFPR = 0.0001
	}
	return c
}

// Orchestrator owns the lifecycle of every per-shard fetcher pool and the
// shared parser pool, plus the periodic housekeeping loops that monitor
// them (§4.8).
type Orchestrator struct {
	store        *datastore.Client
	frontierMgr  *frontier.Manager
	fetcherPools []*fetcherpool.Pool
	parserPool   *parser.WorkerPool
	queue        *parser.Queue
	metrics      *metrics.Metrics
	log          logger.Interface
	cfg          Config

	startedAt time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New constructs an Orchestrator. fetcherPools must have one entry per
// shard in cfg.Shards, each already configured with its shard ID.
func New(
	store *datastore.Client,
	frontierMgr *frontier.Manager,
	fetcherPools []*fetcherpool.Pool,
	parserPool *parser.WorkerPool,
	queue *parser.Queue,
	m *metrics.Metrics,
	log logger.Interface,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		store:        store,
		frontierMgr:  frontierMgr,
		fetcherPools: fetcherPools,
		parserPool:   parserPool,
		queue:        queue,
		metrics:      m,
		log:          log,
		cfg:          cfg.WithDefaults(),
		stopCh:       make(chan struct{}),
	}
}

// Run loads seeds, starts every fetcher pool and the parser pool, runs
// housekeeping until a stop condition fires or ctx is cancelled, then waits
// for the pools to return, closes the parser queue, and returns. Parser
// workers stop when the run context is cancelled, so results still queued
// at that point are not parsed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startedAt = time.Now()

	if err := o.store.ProvisionBloom(ctx, datastore.BloomParams{
		Capacity:  o.cfg.BloomCapacity,
		ErrorRate: o.cfg.BloomFPR,
	}); err != nil {
		return fmt.Errorf("orchestrator: provision bloom: %w", err)
	}

	// A stop request from a previous run must not stop this one.
	if err := o.store.SetStopRequested(ctx, false); err != nil {
		return fmt.Errorf("orchestrator: clear stop_requested: %w", err)
	}

	if o.cfg.SeedFile != "" {
		if err := o.loadSeeds(ctx); err != nil {
			return fmt.Errorf("orchestrator: load seeds: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.parserPool.Start(runCtx)
	}()

	for _, pool := range o.fetcherPools {
		pool := pool
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			pool.Start(runCtx)
		}()
	}

	o.wg.Add(3)
	go o.heartbeatLoop(runCtx)
	go o.metricsLoop(runCtx)
	go o.staleClaimLoop(runCtx)

	o.wg.Add(1)
	go o.stopConditionLoop(runCtx, cancel)

	<-runCtx.Done()
	o.wg.Wait()
	o.queue.Close()
	return nil
}

// Stop requests a graceful shutdown; Run returns once in-flight work
// completes or the context it was given is cancelled first.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

// SetSeedFile overrides the seed file Run loads from before starting
// worker pools. Passing "" skips seed loading entirely (resume mode,
// trusting the datastore's persisted ready sets and frontier files).
func (o *Orchestrator) SetSeedFile(path string) {
	o.cfg.SeedFile = path
}

func (o *Orchestrator) loadSeeds(ctx context.Context) error {
	urls, err := seeds.Load(o.cfg.SeedFile)
	if err != nil {
		return err
	}
	links := make([]frontier.Link, len(urls))
	for i, u := range urls {
		links[i] = frontier.Link{URL: u, Depth: 0}
		if err := o.store.AddSeed(ctx, u); err != nil && o.log != nil {
			o.log.Warn("record seed failed", "url", u, "error", err)
		}
	}
	if o.log != nil {
		o.log.Info("loaded seeds", "count", len(links))
	}
	return o.frontierMgr.Enqueue(ctx, links, true)
}

func (o *Orchestrator) heartbeatLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for shard := 0; shard < o.cfg.Shards; shard++ {
				if err := o.store.Heartbeat(ctx, shard); err != nil && o.log != nil {
					o.log.Error("heartbeat failed", "shard", shard, "error", err)
				}
			}
		}
	}
}

func (o *Orchestrator) metricsLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.emitMetrics(ctx)
		}
	}
}

func (o *Orchestrator) emitMetrics(ctx context.Context) {
	if o.metrics == nil {
		return
	}
	for shard := 0; shard < o.cfg.Shards; shard++ {
		size, err := o.frontierMgr.ReadySize(ctx, shard)
		if err != nil {
			if o.log != nil {
				o.log.Warn("ready size metric failed", "shard", shard, "error", err)
			}
			continue
		}
		o.metrics.FrontierReadySize.WithLabelValues(fmt.Sprintf("%d", shard)).Set(float64(size))
	}
	o.metrics.ParseQueueDepth.Set(float64(o.queue.Depth()))
	o.metrics.ParseQueueBytes.Set(float64(o.queue.Bytes()))

	if ratio, err := o.store.BloomOccupancyRatio(ctx, o.cfg.BloomCapacity); err == nil && ratio > 0.5 {
		if o.log != nil {
			o.log.Warn("dedup bloom filter past half of nominal capacity; false-positive rate is rising",
				"occupancy_ratio", ratio)
		}
	}
}

// staleClaimLoop scans for fetcher shards whose heartbeat is older than
// StaleHeartbeatAfter and releases any domain still sitting outside the
// ready set for that shard, so another process can reclaim it (§4.8).
func (o *Orchestrator) staleClaimLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.StaleClaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepStaleShards(ctx)
		}
	}
}

func (o *Orchestrator) sweepStaleShards(ctx context.Context) {
	for shard := 0; shard < o.cfg.Shards; shard++ {
		last, err := o.store.LastHeartbeat(ctx, shard)
		if err != nil {
			continue
		}
		if time.Since(last) <= o.cfg.StaleHeartbeatAfter {
			continue
		}
		cutoff := time.Now().Add(-o.cfg.StaleHeartbeatAfter)
		recovered, err := o.store.RecoverStaleClaims(ctx, shard, cutoff)
		if err != nil {
			if o.log != nil {
				o.log.Error("stale claim recovery failed", "shard", shard, "error", err)
			}
			continue
		}
		if recovered > 0 && o.log != nil {
			o.log.Warn("recovered stale claims from dead fetcher",
				"shard", shard, "recovered", recovered, "last_heartbeat", last)
		}
	}
}

// stopConditionLoop detects §4.8's stop conditions (a)-(c); condition (d),
// an external signal, is handled by the caller cancelling ctx or calling
// Stop directly (e.g. from a SIGINT handler in cmd/).
func (o *Orchestrator) stopConditionLoop(ctx context.Context, cancel context.CancelFunc) {
	defer o.wg.Done()
	const pollInterval = time.Second
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			cancel()
			return
		case <-ticker.C:
			if requested, err := o.store.StopRequested(ctx); err == nil && requested {
				if o.log != nil {
					o.log.Info("stopping: stop requested via datastore")
				}
				cancel()
				return
			}
			if o.cfg.MaxPages > 0 && o.metrics != nil && o.metrics.PagesFetched() >= o.cfg.MaxPages {
				if o.log != nil {
					o.log.Info("stopping: max pages reached", "max_pages", o.cfg.MaxPages)
				}
				cancel()
				return
			}
			if o.cfg.MaxDuration > 0 && time.Since(o.startedAt) >= o.cfg.MaxDuration {
				if o.log != nil {
					o.log.Info("stopping: max duration reached", "max_duration", o.cfg.MaxDuration)
				}
				cancel()
				return
			}
			if o.allShardsIdle(ctx) {
				if idleSince.IsZero() {
					idleSince = time.Now()
				} else if time.Since(idleSince) >= o.cfg.ShutdownIdleGrace {
					if o.log != nil {
						o.log.Info("stopping: idle grace elapsed")
					}
					cancel()
					return
				}
			} else {
				idleSince = time.Time{}
			}
		}
	}
}

func (o *Orchestrator) allShardsIdle(ctx context.Context) bool {
	if o.queue.Depth() > 0 {
		return false
	}
	for shard := 0; shard < o.cfg.Shards; shard++ {
		size, err := o.frontierMgr.ReadySize(ctx, shard)
		if err != nil || size > 0 {
			return false
		}
	}
	return true
}
