// Package cli provides the command-line interface for kbops.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kbops-go/internal/api"
	"github.com/raphaelgruber/kbops-go/internal/assignment"
	"github.com/raphaelgruber/kbops-go/internal/config"
	"github.com/raphaelgruber/kbops-go/internal/kbimport"
	"github.com/raphaelgruber/kbops-go/internal/metrics"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config and clients
	cfg          config.Config
	collector    *metrics.Collector
	apiClient    *api.Client
	jobClient    *kbimport.Client
	assignClient *assignment.Client
	logCleanup   func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kbops",
	Short: "Knowledge-base operations console",
	Long: `kbops drives the knowledge-base side of the operations console:
import documents, CSVs and URLs into a knowledge base through the server's
asynchronous import pipeline, and manage which knowledge base applies per
campaign, phone number, agent or workspace.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}

		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, cleanup := config.NewLogger(cfg)
		slog.SetDefault(logger)
		logCleanup = cleanup

		collector = metrics.NewCollector()
		apiClient = api.New(cfg.ServerURL, api.WithMetrics(collector))
		jobClient = kbimport.NewClient(apiClient)
		assignClient = assignment.NewClient(apiClient, assignment.NewResolutionCache())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if collector != nil {
			for _, op := range collector.Snapshot().Operations {
				slog.Debug("api stats", "op", op.Op, "count", op.Count,
					"avg_ms", op.AvgTimeMs, "max_ms", op.MaxTimeMs)
			}
		}
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// pollPolicy builds the poll bounds from config.
func pollPolicy() kbimport.PollPolicy {
	return kbimport.PollPolicy{
		Interval:    cfg.PollInterval,
		MaxRetries:  cfg.PollMaxRetries,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend URL (overrides config)")
}
