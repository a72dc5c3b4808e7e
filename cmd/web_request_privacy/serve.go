package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/api"
	"github.com/vphpersson/web_request_privacy/pkg/har"
	"github.com/vphpersson/web_request_privacy/pkg/mcp_tools"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var (
	mcpNoHttp   bool
	mcpHarPaths []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregator behind the loopback HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine := newEngine(nil)
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error { return runEngine(groupCtx, engine) })
		group.Go(func() error { return serveHttp(groupCtx, engine) })

		return group.Wait()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the privacy tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine := newEngine(nil)
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error { return runEngine(groupCtx, engine) })
		if !mcpNoHttp {
			group.Go(func() error { return serveHttp(groupCtx, engine) })
		}
		group.Go(func() error {
			for i, path := range mcpHarPaths {
				if err := ingestHarFile(groupCtx, engine, i+1, path); err != nil {
					return err
				}
			}

			server := mcp.NewServer(&mcp.Implementation{Name: "web_request_privacy", Version: version}, nil)
			mcp_tools.New(engine, newDetector(), logger).Register(server)

			logger.Info("Serving MCP on stdio.")
			if err := server.Run(groupCtx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server run: %w", err)
			}
			// The client closing stdin ends the whole process.
			return context.Canceled
		})

		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpNoHttp, "no-http", false, "do not start the HTTP API next to the MCP server")
	mcpCmd.Flags().StringSliceVar(&mcpHarPaths, "har", nil, "HAR files to preload, into tabs 1..n")
}

// runEngine runs the engine loop until ctx is done. Cancellation is a clean stop.
func runEngine(ctx context.Context, engine *aggregator.Engine) error {
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("engine run: %w", err)
	}
	return nil
}

func serveHttp(ctx context.Context, engine *aggregator.Engine) error {
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           api.NewServer(engine, newDetector(), logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving HTTP API.", zap.String("address", cfg.ListenAddress))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server listen and serve: %w", err)
	}

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("HTTP API stopped.")
	return nil
}

func ingestHarFile(ctx context.Context, engine *aggregator.Engine, tabId int, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("os open: %w", err)
	}
	defer file.Close()

	log, err := har.Load(file)
	if err != nil {
		return fmt.Errorf("har load (%s): %w", path, err)
	}
	if err := har.Ingest(ctx, engine, tabId, log); err != nil {
		return fmt.Errorf("har ingest (%s): %w", path, err)
	}
	logger.Info("Ingested HAR file.", zap.String("path", path), zap.Int("tab_id", tabId), zap.Int("entries", len(log.Entries)))
	return nil
}
