// Package app wires the concrete collaborators -- datastore client,
// frontier files, politeness engine, frontier manager, parser queue and
// pool, per-shard fetcher pools, and the orchestrator -- from an
// internal/config.Config, the way the teacher's cmd/root.go builds a
// crawler.Crawler from its nested config before handing it to a command.
package app

import (
	"fmt"

	"github.com/jonesrussell/corecrawl/internal/config"
	"github.com/jonesrussell/corecrawl/internal/datastore"
	"github.com/jonesrussell/corecrawl/internal/fetcherpool"
	"github.com/jonesrussell/corecrawl/internal/frontier"
	"github.com/jonesrussell/corecrawl/internal/frontierfile"
	"github.com/jonesrussell/corecrawl/internal/logger"
	"github.com/jonesrussell/corecrawl/internal/metrics"
	"github.com/jonesrussell/corecrawl/internal/orchestrator"
	"github.com/jonesrussell/corecrawl/internal/parser"
	"github.com/jonesrussell/corecrawl/internal/politeness"
	"github.com/jonesrussell/corecrawl/internal/resharder"

	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// App holds every long-lived collaborator built from a Config, plus the
// things a command needs to shut them down in order.
type App struct {
	Store       *datastore.Client
	Files       *frontierfile.Store
	Politeness  *politeness.PolicyEngine
	Frontier    *frontier.Manager
	Queue       *parser.Queue
	ParserPool  *parser.WorkerPool
	FetcherPools []*fetcherpool.Pool
	Orchestrator *orchestrator.Orchestrator
	Metrics     *metrics.Metrics
	Log         logger.Interface
	Resharder   *resharder.Resharder
}

// NewLogger builds the process logger from config, following cmd/root.go's
// pattern of deriving logger.Config from debug/environment flags.
func NewLogger(cfg config.Config, debug bool) (logger.Interface, error) {
	level := logger.InfoLevel
	if debug {
		level = logger.DebugLevel
	}
	return logger.New(&logger.Config{
		Level:       level,
		Development: debug,
		Encoding:    "console",
		OutputPaths: logger.DefaultOutputPaths,
	})
}

// Build constructs every collaborator needed to run the crawler core
// against shard 0..cfg.Shards-1, but does not start any of them -- callers
// decide whether they want the full orchestrator (coordinator process) or
// just a single fetcher pool (a standalone fetcher process, §4.8).
func Build(cfg config.Config, log logger.Interface, reg prometheus.Registerer) (*App, error) {
	store, err := datastore.NewClient(datastore.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("app: new datastore client: %w", err)
	}

	files, err := frontierfile.New(frontierfile.Config{Root: cfg.FrontierRoot})
	if err != nil {
		return nil, fmt.Errorf("app: new frontier file store: %w", err)
	}

	m := metrics.New(reg)
	store.SetMetrics(m)

	robotsClient := &http.Client{Timeout: cfg.RobotsFetchDeadline}
	robots := politeness.NewRobotsEngine(store, robotsClient, politeness.Config{
		UserAgent:           cfg.UserAgent,
		RobotsFetchDeadline: cfg.RobotsFetchDeadline,
		RobotsTTL:           cfg.RobotsTTL,
		RobotsNegativeTTL:   cfg.RobotsNegativeTTL,
	}, log)
	robots.SetMetrics(m)

	policy := politeness.NewPolicyEngine(store, robots, politeness.Config{
		UserAgent:           cfg.UserAgent,
		DefaultCrawlDelay:   cfg.DefaultCrawlDelay,
		MinCrawlDelay:       cfg.MinCrawlDelay,
		MaxCrawlDelay:       cfg.MaxCrawlDelay,
		RobotsTTL:           cfg.RobotsTTL,
		RobotsNegativeTTL:   cfg.RobotsNegativeTTL,
		RobotsFetchDeadline: cfg.RobotsFetchDeadline,
		SeededOnly:          cfg.SeededOnly,
	})

	frontierMgr := frontier.NewManager(store, files, policy, frontier.Config{
		Shards:    cfg.Shards,
		MaxURLLen: cfg.MaxURLLen,
		MaxDepth:  cfg.MaxDepth,
	}, m, log)

	queue := parser.NewQueue(parser.QueueConfig{
		MaxItems: cfg.ParserQueueItems,
		MaxBytes: cfg.ParserQueueBytes,
	})

	parserPool := parser.NewWorkerPool(queue, frontierMgr, store, m, log, parser.WorkerConfig{
		WorkerCount:           parserWorkerCount(cfg.ParserWorkersPerShard),
		SaveExtractedTextOnly: cfg.SaveExtractedTextOnly,
		ContentRoot:           cfg.ContentRoot,
	})

	fetcherPools := make([]*fetcherpool.Pool, cfg.Shards)
	for shard := 0; shard < cfg.Shards; shard++ {
		fetcherPools[shard] = fetcherpool.New(frontierMgr, policy, store, queue, m, log, fetcherpool.Config{
			Shard:         shard,
			WorkerCount:   cfg.FetcherTasksPerShard,
			UserAgent:     cfg.UserAgent,
			FetchDeadline: cfg.FetchDeadline,
			ShutdownGrace: cfg.FetchShutdownGrace,
		})
	}

	orch := orchestrator.New(store, frontierMgr, fetcherPools, parserPool, queue, m, log, orchestrator.Config{
		Shards:              cfg.Shards,
		MaxPages:            cfg.StopMaxPages,
		MaxDuration:         cfg.StopMaxDuration,
		ShutdownIdleGrace:   cfg.ShutdownIdleGrace,
		MetricsInterval:     cfg.MetricsInterval,
		StaleClaimInterval:  cfg.StaleClaimInterval,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		StaleHeartbeatAfter: cfg.HeartbeatDeadAfter,
		BloomCapacity:       cfg.BloomCapacity,
		BloomFPR:            cfg.BloomFPR,
	})

	rs := resharder.New(store, files, log)

	return &App{
		Store:        store,
		Files:        files,
		Politeness:   policy,
		Frontier:     frontierMgr,
		Queue:        queue,
		ParserPool:   parserPool,
		FetcherPools: fetcherPools,
		Orchestrator: orch,
		Metrics:      m,
		Log:          log,
		Resharder:    rs,
	}, nil
}

// BuildDatastoreOnly constructs just the datastore client and frontier file
// store needed by commands that only touch shared state directly -- the
// reshard and stop subcommands, neither of which runs any worker pool.
func BuildDatastoreOnly(cfg config.Config, log logger.Interface) (*App, error) {
	store, err := datastore.NewClient(datastore.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("app: new datastore client: %w", err)
	}

	files, err := frontierfile.New(frontierfile.Config{Root: cfg.FrontierRoot})
	if err != nil {
		return nil, fmt.Errorf("app: new frontier file store: %w", err)
	}

	return &App{
		Store:     store,
		Files:     files,
		Log:       log,
		Resharder: resharder.New(store, files, log),
	}, nil
}

// BuildFetcherOnly prepares a standalone fetcher process for a single shard
// (§4.8). It runs Build, so the orchestrator and every shard's fetcher pool
// are still constructed, then keeps only the given shard's pool in
// FetcherPools; the caller starts that pool and the parser pool only.
func BuildFetcherOnly(cfg config.Config, shard int, log logger.Interface, reg prometheus.Registerer) (*App, error) {
	full, err := Build(cfg, log, reg)
	if err != nil {
		return nil, err
	}
	if shard < 0 || shard >= len(full.FetcherPools) {
		return nil, fmt.Errorf("app: shard %d out of range [0,%d)", shard, len(full.FetcherPools))
	}
	full.FetcherPools = []*fetcherpool.Pool{full.FetcherPools[shard]}
	return full, nil
}

// parserWorkerCount resolves configured to max(1, NumCPU-1) when configured
// is 0, per internal/config's "0 => max(1, cores-1) at runtime" contract.
func parserWorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// Close releases every collaborator that owns a resource, in reverse
// construction order, continuing past errors so every Close is attempted.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.Files != nil {
		if err := a.Files.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close frontier files: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close datastore: %w", err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
