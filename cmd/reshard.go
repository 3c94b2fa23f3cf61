package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/corecrawl/internal/app"
)

var reshardTo int

func newReshardCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "reshard",
		Short: "Move every domain's frontier file and ready-set membership to a new shard count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReshard(cmd.Context(), reshardTo)
		},
	}
	c.Flags().IntVar(&reshardTo, "to", 0, "new shard count (required)")
	_ = c.MarkFlagRequired("to")
	return c
}

// runReshard expects the crawler to already be stopped (§4.9's "Stop
// crawler, run reshard --to=N, start crawler" sequence); it does not itself
// coordinate with a running coordinator beyond the reshard_in_progress flag
// and distributed lock the resharder already takes.
func runReshard(ctx context.Context, newShards int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	log, err := app.NewLogger(cfg, debug)
	if err != nil {
		return fmt.Errorf("%w: build logger: %w", errConfig, err)
	}

	a, err := app.BuildDatastoreOnly(cfg, log)
	if err != nil {
		return fmt.Errorf("%w: %w", errDatastore, err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Error("shutdown cleanup failed", "error", closeErr)
		}
	}()

	oldShards := cfg.Shards
	if err := a.Resharder.Run(ctx, oldShards, newShards); err != nil {
		return fmt.Errorf("%w: reshard: %w", errDatastore, err)
	}
	log.Info("reshard complete", "from_shards", oldShards, "to_shards", newShards)
	return nil
}
