package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sidecarlabs/agora/internal/config"
	"github.com/sidecarlabs/agora/internal/metrics"
	"github.com/sidecarlabs/agora/internal/orchestrator"
	"github.com/sidecarlabs/agora/internal/registry"
	"github.com/sidecarlabs/agora/internal/server"
	"github.com/sidecarlabs/agora/pkg/models"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the marketplace HTTP server",
	Long: `Serve the marketplace REST API, the websocket event stream, and
Prometheus metrics. Health probes run on the configured schedule, and
the seed catalog (if configured) is hot-reloaded on change.

Endpoints:
  POST   /api/services                    register a service
  GET    /api/services                    search the catalog
  POST   /api/services/:id/rate           rate a service
  POST   /api/orchestrations              submit a goal
  GET    /api/orchestrations/:id          poll a run
  GET    /ws/events                       stream all run events
  GET    /metrics                         Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Registry.SeedPath != "" {
		watcher, err := registry.WatchSeed(store, cfg.Registry.SeedPath)
		if err != nil {
			log.Printf("[agora] seed watcher unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	m := metrics.New()

	monitor := buildMonitor(cfg, store)
	monitor.OnCycle = func(results map[string]models.HealthResult) {
		for _, r := range results {
			m.RecordProbe(r)
		}
	}
	monitor.RunCycle(ctx)
	if err := monitor.Start(cfg.Health.Interval); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	defer monitor.Stop()

	executor, _, err := buildExecutor(cfg)
	if err != nil {
		return err
	}
	planner := buildPlanner(cfg)

	pool := orchestrator.NewPool(func() *orchestrator.Orchestrator {
		return orchestrator.New(store, monitor, planner, executor,
			orchestrator.WithWeights(cfg.Weights),
			orchestrator.WithObserver(m))
	})
	defer pool.Stop()

	srv := server.New(store, pool, m)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[agora] serving on %s", cfg.Server.Addr)
		errCh <- srv.Run(cfg.Server.Addr)
	}()

	select {
	case <-ctx.Done():
		log.Printf("[agora] shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
