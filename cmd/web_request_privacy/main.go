package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/config"
	"github.com/vphpersson/web_request_privacy/pkg/logging"
	"github.com/vphpersson/web_request_privacy/pkg/pii"
	"github.com/vphpersson/web_request_privacy/pkg/tracker"
	"go.uber.org/zap"
)

var version = "dev"

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "web_request_privacy",
	Short:         "Classify browser network traffic and assess its privacy risk",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config load: %w", err)
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config validate: %w", err)
		}

		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("logging new: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, mcpCmd, analyzeHarCmd, replayCmd, watchCmd, versionCmd)
}

func newEngine(resolver aggregator.PageUrlResolver) *aggregator.Engine {
	registry := aggregator.NewRegistry(tracker.New(cfg.ExtraTrackerDomains...), logger)
	return aggregator.NewEngine(registry, resolver, logger)
}

func newDetector() *pii.Detector {
	return pii.NewDetector(cfg.Pii.MaxScanBytes)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if logger != nil {
			logger.Error("Command failed.", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
