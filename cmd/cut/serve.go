package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/cliproxy-usage-tui/internal/api"
	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Collect in the background and serve the HTTP API",
	Long: `Run the collector and rate-limit evaluator headless and expose usage over HTTP:

  GET  /health
  GET  /api/collector/health
  POST /api/collector/trigger
  GET  /api/usage?from=YYYY-MM-DD&to=YYYY-MM-DD
  GET  /api/usage/sliding?minutes=N
  GET  /api/limits
  POST /api/limits/{id}/reset`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "HTTP listen address (overrides LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	mgr, cleanup, err := openManager(os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := mgr.Config().ListenAddr
	if flagListen != "" {
		addr = flagListen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Start()

	handler := api.NewHandler(mgr.Collector(), mgr.Usage(), mgr)
	server := api.NewServer(addr, api.NewRouter(handler))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		return logEvents(ctx, mgr)
	})

	logger.Info("Collector started",
		"proxy", mgr.Config().CLIProxyURL,
		"interval", mgr.Config().CollectorInterval.Std())

	return g.Wait()
}

// logEvents mirrors service events into the log until ctx ends.
func logEvents(ctx context.Context, mgr *services.Manager) error {
	ch, _ := mgr.Subscribe()
	defer mgr.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			switch e := event.(type) {
			case services.SnapshotCollectedEvent:
				logger.Debug("Snapshot collected", "rows", len(e.Snapshot.Counters))
			case services.LimitsUpdatedEvent:
				for _, err := range e.Errors {
					logger.Warn("Rate limit evaluation failed", "error", err)
				}
			case services.ErrorEvent:
				logger.Error("Service error", "service", e.Service, "error", e.Error)
			}
		}
	}
}
