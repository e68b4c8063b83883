package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/nwp-ingest-service/internal/adapter/arso"
	"github.com/couchcryptid/nwp-ingest-service/internal/adapter/grib"
	httpadapter "github.com/couchcryptid/nwp-ingest-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nwp-ingest-service/internal/adapter/kafka"
	"github.com/couchcryptid/nwp-ingest-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/nwp-ingest-service/internal/config"
	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	"github.com/couchcryptid/nwp-ingest-service/internal/observability"
	"github.com/couchcryptid/nwp-ingest-service/internal/pipeline"
	"github.com/couchcryptid/nwp-ingest-service/internal/scheduler"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:         cfg.DBDriver,
		Host:           cfg.DBHost,
		Port:           cfg.DBPort,
		User:           cfg.DBUser,
		Password:       cfg.DBPassword,
		Name:           cfg.DBName,
		CreateDatabase: cfg.DBCreateDatabase,
	}, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	client := arso.NewClient(arso.Config{
		ArchiveBaseURL:     cfg.ArchiveBaseURL,
		ObservationBaseURL: cfg.ObservationBaseURL,
		WorkDir:            cfg.WorkDir,
		DownloadTimeout:    cfg.DownloadTimeout,
		ResolveTimeout:     cfg.ResolveTimeout,
	}, logger, metrics)
	decoder := grib.NewDecoder(cfg.GribDumpCommand, cfg.WorkDir, logger)

	stages := pipeline.Stages{
		Registry:   pipeline.NewRegistry(store, client, logger, metrics),
		Tracker:    pipeline.NewRunTracker(store, domain.RunWindow{Cadence: cfg.RunCadence, Lookback: cfg.ColdStartLookback}),
		Archive:    client,
		Normalizer: pipeline.NewNormalizer(decoder),
		Store:      store,
	}

	opts := []pipeline.Option{pipeline.WithStorePing(store)}

	// Publish cycle reports to Kafka (feature-flagged via KAFKA_ENABLED).
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaReportTopic, logger)
		opts = append(opts, pipeline.WithPublisher(writer))
		logger.Info("cycle report publishing enabled", "topic", cfg.KafkaReportTopic)
	} else {
		logger.Info("cycle report publishing disabled")
	}

	coord := pipeline.NewCoordinator(cfg.MonitoredLocations, stages, logger, metrics, opts...)
	sched := scheduler.New(coord, cfg.CycleInterval, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, coord, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		stop()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
