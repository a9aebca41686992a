// Package serve implements the HTTP server command for the collector service.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/projektkollen/collector/cmd/common"
	"github.com/projektkollen/collector/internal/api"
	"github.com/projektkollen/collector/internal/collector"
	"github.com/projektkollen/collector/internal/database"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/metrics"
	"github.com/projektkollen/collector/internal/regions"
	"github.com/projektkollen/collector/internal/scheduler"
	"github.com/projektkollen/collector/internal/sse"
	"github.com/projektkollen/collector/internal/tasks"
)

const (
	signalChannelBufferSize = 1
	errorChannelBufferSize  = 1
	defaultShutdownTimeout  = 30 * time.Second
)

// service bundles the long-lived components the server shuts down in order.
type service struct {
	broker    sse.Broker
	scheduler *scheduler.Scheduler
	server    *http.Server
}

// Command returns the serve command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the collection API server",
		Long: `Start the HTTP server that exposes collection triggers, task status,
region overviews and the live event stream, plus the cron scheduler when
one is configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Start(cmd.Context())
		},
	}
}

// Start assembles the service and runs it until interrupted.
// It handles graceful shutdown on SIGINT or SIGTERM signals.
func Start(ctx context.Context) error {
	// Phase 1: Initialize dependencies
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	// Phase 2: Build the service components
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, db, err := buildService(runCtx, deps)
	if err != nil {
		return err
	}
	defer db.Close()

	// Phase 3: Start the HTTP server
	errChan := startServer(deps.Logger, svc.server)

	// Phase 4: Run until interrupted
	return runServerUntilInterrupt(deps.Logger, svc, cancel, errChan)
}

// buildService wires regions, storage, the broker, the task registry, the
// collector and the scheduler into a running service.
func buildService(ctx context.Context, deps *common.CommandDeps) (*service, *sqlx.DB, error) {
	cfg, log := deps.Config, deps.Logger

	registry, err := regions.LoadRegistry(cfg.Collector.RegionsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load regions: %w", err)
	}
	log.Info("Regions loaded",
		logger.String("file", cfg.Collector.RegionsFile),
		logger.Int("total", len(registry.ListRegions())),
		logger.Int("enabled", len(registry.EnabledRegions())))

	db, err := common.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	caseStore := database.NewCaseRepository(db)
	statusStore := database.NewRegionStatusRepository(db)

	promRegistry := prometheus.NewRegistry()
	collectorMetrics := metrics.New(promRegistry)

	broker := sse.NewBroker(log)
	if startErr := broker.Start(ctx); startErr != nil {
		db.Close()
		return nil, nil, fmt.Errorf("start event broker: %w", startErr)
	}

	taskRegistry := tasks.NewRegistry(log, cfg.Collector.TaskRetention)
	taskRegistry.Start(ctx)

	coll := collector.New(cfg.Collector, collector.Deps{
		Regions: registry,
		Tasks:   taskRegistry,
		Cases:   caseStore,
		Status:  statusStore,
		Events:  broker,
		Log:     log,
		Metrics: collectorMetrics,
	})

	sched := scheduler.New(cfg.Scheduler, coll, log)
	if startErr := sched.Start(); startErr != nil {
		db.Close()
		return nil, nil, fmt.Errorf("start scheduler: %w", startErr)
	}

	server, limiter := api.StartHTTPServer(cfg, api.Deps{
		Logger:    log,
		Collector: coll,
		Tasks:     taskRegistry,
		Regions:   registry,
		Cases:     caseStore,
		Status:    statusStore,
		Events:    broker,
		Gatherer:  promRegistry,
	})
	go limiter.Cleanup(ctx)

	return &service{
		broker:    broker,
		scheduler: sched,
		server:    server,
	}, db, nil
}

// startServer runs the HTTP server in a goroutine and returns its error channel.
func startServer(log logger.Logger, server *http.Server) chan error {
	log.Info("Starting HTTP server", logger.String("addr", server.Addr))

	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()
	return errChan
}

// runServerUntilInterrupt runs the server until interrupted by signal or error.
func runServerUntilInterrupt(log logger.Logger, svc *service, cancel context.CancelFunc, errChan chan error) error {
	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case serverErr := <-errChan:
		log.Error("Server error", logger.Error(serverErr))
		return fmt.Errorf("server error: %w", serverErr)
	case sig := <-sigChan:
		return shutdownServer(log, svc, cancel, sig)
	}
}

// shutdownServer performs graceful shutdown of the scheduler, broker and server.
func shutdownServer(log logger.Logger, svc *service, cancel context.CancelFunc, sig os.Signal) error {
	log.Info("Shutdown signal received", logger.String("signal", sig.String()))

	// Stop the scheduler first so no new runs start during the drain.
	svc.scheduler.Stop()

	// Stopping the broker closes every event stream. Open SSE connections
	// would otherwise hold Shutdown until the timeout expired.
	if err := svc.broker.Stop(); err != nil {
		log.Warn("Event broker stop failed", logger.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancelShutdown()

	if err := svc.server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	cancel()
	log.Info("Server stopped")
	return nil
}
