// Command fetcher is the standalone per-shard fetcher process for
// multi-process deployments (§4.8): it runs one shard's fetcher pool and
// the shared parser pool, and writes its own heartbeat, independent of
// whatever coordinator process is running seed loading and housekeeping.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonesrussell/corecrawl/internal/app"
	"github.com/jonesrussell/corecrawl/internal/config"
	"github.com/jonesrussell/corecrawl/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fetcher: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgFile string
	var shard int
	var debug bool
	flag.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	flag.IntVar(&shard, "shard", 0, "shard id this process owns")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Shard = shard

	log, err := app.NewLogger(cfg, debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	a, err := app.BuildFetcherOnly(cfg, shard, log, nil)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Error("shutdown cleanup failed", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.ParserPool.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		a.FetcherPools[0].Start(ctx)
	}()
	go heartbeatLoop(ctx, a, shard, cfg.HeartbeatInterval, log)

	log.Info("fetcher process started", "shard", shard)
	wg.Wait()
	a.Queue.Close()
	return nil
}

func heartbeatLoop(ctx context.Context, a *app.App, shard int, interval time.Duration, log logger.Interface) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Store.Heartbeat(ctx, shard); err != nil {
				log.Error("heartbeat failed", "shard", shard, "error", err)
			}
		}
	}
}
