package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/drive-risk-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/drive-risk-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/drive-risk-ingest/internal/adapter/nhtsa"
	"github.com/couchcryptid/drive-risk-ingest/internal/adapter/tomtom"
	"github.com/couchcryptid/drive-risk-ingest/internal/config"
	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
	"github.com/couchcryptid/drive-risk-ingest/internal/observability"
	"github.com/couchcryptid/drive-risk-ingest/internal/pipeline"
	"github.com/couchcryptid/drive-risk-ingest/internal/poller"
	"github.com/couchcryptid/drive-risk-ingest/internal/scheduler"
)

const raterCacheSize = 256

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	fusion, err := domain.NewFusionEngine(cfg.FusionWeights)
	if err != nil {
		logger.Error("invalid fusion weights", "error", err)
		os.Exit(1)
	}

	writer := kafkaadapter.NewWriter(cfg, logger)

	deps := pipeline.Deps{
		Rater:       nhtsa.NewCachedRater(nhtsa.NewClient(cfg.NHTSABaseURL, cfg.CallTimeout, logger, metrics), raterCacheSize, metrics),
		Sink:        writer,
		Refresher:   writer,
		Fusion:      fusion,
		TrafficGate: poller.NewGate(cfg.TomTomMinSpacing),
		VehicleGate: poller.NewGate(cfg.NHTSAMinSpacing),
		Logger:      logger,
		Metrics:     metrics,
	}

	// Traffic jobs are feature-flagged on the TomTom credential; the vehicle
	// sweep needs none and always runs.
	if cfg.TomTomEnabled {
		client := tomtom.NewClient(cfg.TomTomAPIKey, cfg.TomTomBaseURL, cfg.CallTimeout, logger, metrics)
		deps.Flow = client
		deps.Incidents = client
		logger.Info("tomtom traffic collection enabled",
			"regions", len(cfg.Regions), "grid_density", cfg.GridDensity)
	} else {
		logger.Info("tomtom traffic collection disabled")
	}

	svc := pipeline.New(cfg, deps)

	sched := scheduler.New(clockwork.NewRealClock(), logger, metrics)
	if cfg.TomTomEnabled {
		sched.Add(scheduler.Job{Name: "traffic_sweep", Every: cfg.TrafficSweepInterval, Run: svc.TrafficSweep})
		sched.Add(scheduler.Job{Name: "full_pipeline", Every: cfg.FullPipelineInterval, Run: svc.FullPipeline})
	}
	sched.Add(scheduler.Job{Name: "vehicle_sweep", Every: cfg.VehicleSweepInterval, Run: svc.VehicleSweep})
	sched.Add(scheduler.Job{Name: "model_refresh", Every: cfg.ModelRefreshInterval, Run: svc.ModelRefresh})

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run scheduled sweeps until interrupted.
	sched.Run(ctx)

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
