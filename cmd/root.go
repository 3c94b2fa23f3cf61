// Package cmd implements the command-line interface for the crawler
// coordinator: start, resume, reshard, and stop, following the teacher's
// cmd/root.go shape (persistent flags, initConfig via viper/.env, a
// version command) collapsed to this core's single-concern config.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/corecrawl/internal/config"
)

const (
	exitOK              = 0
	exitConfigError     = 64
	exitDatastoreFailure = 70
	exitInterrupted      = 130
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "corecrawl",
		Short: "A frontier-and-politeness web crawler core",
		Long:  `corecrawl coordinates fetcher processes over a sharded, datastore-backed frontier.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return exitOK
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("corecrawl version 1.0.0")
		},
	})

	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newResumeCommand())
	rootCmd.AddCommand(newReshardCommand())
	rootCmd.AddCommand(newStopCommand())
}

// loadConfig loads configuration from cfgFile (or its usual defaults) and
// returns config.Load's error unchanged; callers wrap it in errConfig so
// exitCodeFor maps it to exitConfigError.
func loadConfig() (config.Config, error) {
	return config.Load(cfgFile)
}

// exitCodeFor maps a sentinel error from a subcommand to §6's exit codes.
func exitCodeFor(err error) int {
	switch {
	case isConfigError(err):
		return exitConfigError
	case isDatastoreError(err):
		return exitDatastoreFailure
	case isInterrupted(err):
		return exitInterrupted
	default:
		return 1
	}
}
