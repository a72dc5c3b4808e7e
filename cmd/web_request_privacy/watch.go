package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/spf13/cobra"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/cdp_feed"
	"go.uber.org/zap"
)

const watchTabId = 1

var (
	watchDuration time.Duration
	watchServe    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <url>",
	Short: "Open a page in a browser and observe its network traffic over DevTools",
	Long: "Watch opens url in a browser, feeds its requests into the aggregator and prints a " +
		"report when interrupted or when --duration elapses.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		browser, err := cdp_feed.Connect(cmd.Context(), cfg.Browser.ControlUrl, cfg.Browser.Headless)
		if err != nil {
			return fmt.Errorf("cdp feed connect: %w", err)
		}
		defer func() {
			if err := browser.Close(); err != nil {
				logger.Debug("Browser close failed.", zap.Error(err))
			}
		}()

		page, err := browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return fmt.Errorf("browser page: %w", err)
		}

		var resolver aggregator.PageUrlResolver
		if !cfg.Browser.FullFidelity {
			resolver = &cdp_feed.PageResolver{Page: page}
		}

		return withEngine(context.Background(), resolver, func(engineCtx context.Context, engine *aggregator.Engine) error {
			if watchServe {
				go func() {
					if err := serveHttp(engineCtx, engine); err != nil {
						logger.Warn("HTTP API failed.", zap.Error(err))
					}
				}()
			}

			watchCtx := ctx
			if watchDuration > 0 {
				var cancel context.CancelFunc
				watchCtx, cancel = context.WithTimeout(ctx, watchDuration)
				defer cancel()
			}

			logger.Info("Watching page.", zap.String("url", args[0]), zap.Bool("full_fidelity", cfg.Browser.FullFidelity))
			options := cdp_feed.Options{
				TabId:        watchTabId,
				FullFidelity: cfg.Browser.FullFidelity,
				Url:          args[0],
				Logger:       logger,
			}
			if err := cdp_feed.Watch(watchCtx, page, engine, options); err != nil &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("cdp feed watch: %w", err)
			}

			report, err := buildReport(engineCtx, engine, newDetector(), watchTabId)
			if err != nil {
				return err
			}
			return writeIndentedJSON(cmd.OutOrStdout(), report)
		})
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDuration, "duration", 0, "stop watching after this long; zero waits for an interrupt")
	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "serve the HTTP API while watching")
}
