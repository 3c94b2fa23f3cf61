package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/corecrawl/internal/app"
)

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Request a graceful stop of any running coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd)
		},
	}
}

// runStop sets the datastore-backed stop_requested flag a running
// coordinator's stop-condition loop polls for; it does not itself wait for
// the coordinator to actually exit.
func runStop(cmd *cobra.Command) error {
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

	if err := a.Store.SetStopRequested(cmd.Context(), true); err != nil {
		return fmt.Errorf("%w: set stop_requested: %w", errDatastore, err)
	}
	log.Info("stop requested")
	return nil
}
