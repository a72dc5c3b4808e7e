package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/web_request_feed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	analyzeTabId int
	analyzeEcs   bool
	replayEcs    bool
)

// withEngine runs an engine for the duration of work.
func withEngine(
	ctx context.Context,
	resolver aggregator.PageUrlResolver,
	work func(ctx context.Context, engine *aggregator.Engine) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine := newEngine(resolver)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return runEngine(groupCtx, engine) })
	group.Go(func() error {
		defer cancel()
		return work(groupCtx, engine)
	})
	return group.Wait()
}

var analyzeHarCmd = &cobra.Command{
	Use:   "analyze-har <file>",
	Short: "Score the requests of a HAR file and report PII and cookie findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), nil, func(ctx context.Context, engine *aggregator.Engine) error {
			if err := ingestHarFile(ctx, engine, analyzeTabId, args[0]); err != nil {
				return err
			}
			if analyzeEcs {
				return writeEcsDocuments(ctx, cmd.OutOrStdout(), engine, analyzeTabId)
			}

			report, err := buildReport(ctx, engine, newDetector(), analyzeTabId)
			if err != nil {
				return err
			}
			return writeIndentedJSON(cmd.OutOrStdout(), report)
		})
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <jsonl>",
	Short: "Replay a recorded interception event stream and report every tab",
	Long:  "Replay reads newline-delimited webRequest events from a file, or from stdin when the path is \"-\".",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var reader io.Reader = cmd.InOrStdin()
		if path := args[0]; path != "-" {
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("os open: %w", err)
			}
			defer file.Close()
			reader = file
		}

		return withEngine(cmd.Context(), nil, func(ctx context.Context, engine *aggregator.Engine) error {
			dispatched, err := web_request_feed.Replay(ctx, reader, engine, logger)
			if err != nil {
				return fmt.Errorf("web request feed replay: %w", err)
			}
			logger.Info("Replayed events.", zap.Int("dispatched", dispatched))

			tabIds, err := engine.Tabs(ctx)
			if err != nil {
				return fmt.Errorf("engine tabs: %w", err)
			}

			if replayEcs {
				for _, tabId := range tabIds {
					if err := writeEcsDocuments(ctx, cmd.OutOrStdout(), engine, tabId); err != nil {
						return err
					}
				}
				return nil
			}

			detector := newDetector()
			reports := make([]*tabReport, 0, len(tabIds))
			for _, tabId := range tabIds {
				report, err := buildReport(ctx, engine, detector, tabId)
				if err != nil {
					return err
				}
				reports = append(reports, report)
			}
			return writeIndentedJSON(cmd.OutOrStdout(), reports)
		})
	},
}

func init() {
	analyzeHarCmd.Flags().IntVar(&analyzeTabId, "tab-id", 1, "tab id to file the archive under")
	analyzeHarCmd.Flags().BoolVar(&analyzeEcs, "ecs", false, "write ECS documents as NDJSON instead of a report")
	replayCmd.Flags().BoolVar(&replayEcs, "ecs", false, "write ECS documents as NDJSON instead of reports")
}
