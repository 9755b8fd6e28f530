package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/farm-protest-map/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/farm-protest-map/internal/adapter/kafka"
	"github.com/couchcryptid/farm-protest-map/internal/adapter/mapbox"
	"github.com/couchcryptid/farm-protest-map/internal/config"
	"github.com/couchcryptid/farm-protest-map/internal/dataset"
	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/couchcryptid/farm-protest-map/internal/observability"
	"github.com/couchcryptid/farm-protest-map/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("failed to parse flags", "error", err)
		os.Exit(2)
	}
	configPath, _ := flags.GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize geocoder (feature-flagged via PROTESTMAP_MAPBOX_ENABLED / PROTESTMAP_MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	table, report, err := dataset.Load(ctx, cfg.DataFile, dataset.Options{Geocoder: geocoder, Logger: logger})
	if err != nil {
		logger.Error("failed to load dataset", "path", cfg.DataFile, "error", err)
		os.Exit(1)
	}
	metrics.DatasetRecords.Set(float64(report.Records))
	metrics.DatasetWeeks.Set(float64(report.Weeks))
	metrics.DatasetDroppedRows.Set(float64(report.Dropped))
	logger.Info("dataset loaded",
		"path", cfg.DataFile,
		"records", report.Records,
		"weeks", report.Weeks,
		"geocoded", report.Geocoded,
		"dropped", report.Dropped,
	)

	// Initialize transition sink (feature-flagged via PROTESTMAP_KAFKA_ENABLED / PROTESTMAP_KAFKA_BROKERS).
	var (
		sink   session.Sink
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		sink = writer
		logger.Info("kafka transition sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	manager := session.NewManager(table, session.Options{
		PlayInterval: cfg.PlayInterval,
		IdleTimeout:  cfg.SessionIdleTimeout,
		MaxSessions:  cfg.MaxSessions,
		Clock:        clockwork.NewRealClock(),
		Sink:         sink,
		Metrics:      metrics,
		Logger:       logger,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, manager, httpadapter.Options{
		Debug:          cfg.Debug,
		TemplateDir:    cfg.TemplateDir,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start idle session reaper.
	go manager.Run(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("session shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
