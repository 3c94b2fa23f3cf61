package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/corecrawl/internal/app"
)

var startSeedFile string

func newStartCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "start",
		Short: "Start a fresh crawl from a seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(cmd.Context(), startSeedFile)
		},
	}
	c.Flags().StringVar(&startSeedFile, "seed-file", "", "path to a newline-delimited seed URL file")
	_ = c.MarkFlagRequired("seed-file")
	return c
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a crawl from persisted frontier/ready-set state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(cmd.Context(), "")
		},
	}
}

// runCoordinator builds every collaborator, runs the orchestrator until a
// stop condition or signal fires, and closes resources on the way out.
// seedFile is "" for resume, where the coordinator trusts the persisted
// ready sets and frontier files instead of re-seeding.
func runCoordinator(ctx context.Context, seedFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	log, err := app.NewLogger(cfg, debug)
	if err != nil {
		return fmt.Errorf("%w: build logger: %w", errConfig, err)
	}

	a, err := app.Build(cfg, log, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errDatastore, err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Error("shutdown cleanup failed", "error", closeErr)
		}
	}()

	a.Orchestrator.SetSeedFile(seedFile)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		a.Orchestrator.Stop()
	}()

	if err := a.Orchestrator.Run(sigCtx); err != nil {
		if sigCtx.Err() != nil {
			return fmt.Errorf("%w: %w", errInterrupted, err)
		}
		return fmt.Errorf("%w: %w", errDatastore, err)
	}
	if sigCtx.Err() != nil {
		return fmt.Errorf("%w: run interrupted", errInterrupted)
	}
	return nil
}
