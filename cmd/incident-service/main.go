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

	"incident-service/internal/analyzer"
	"incident-service/internal/auth"
	"incident-service/internal/config"
	"incident-service/internal/db"
	"incident-service/internal/dispatch"
	httphandler "incident-service/internal/http"
	"incident-service/internal/http/middleware"
	"incident-service/internal/locator"
	"incident-service/internal/logger"
	"incident-service/internal/metrics"
	"incident-service/internal/pipeline"
	"incident-service/internal/repository"
	"incident-service/internal/service"
	"incident-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	incidentRepo := repository.NewIncidentRepository(database)

	// Snapshot storage is optional, the service runs without it.
	snapshots, err := storage.NewSnapshotStoreFromEnv()
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize snapshot storage")
	}
	if err != nil {
		appLogger.Warn().Msg("snapshot storage not configured, snapshot uploads will be disabled")
		snapshots = nil
	}

	var notifiers []dispatch.Notifier

	snsNotifier, err := dispatch.NewSNSNotifierFromEnv(cfg.Alerts.SNSRegion, cfg.Alerts.SNSPhoneNumber)
	if err != nil && !errors.Is(err, dispatch.ErrSNSNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize SNS alerts")
	}
	if err == nil {
		notifiers = append(notifiers, snsNotifier)
	} else {
		appLogger.Warn().Msg("SNS alerts not configured")
	}

	var kafkaNotifier *dispatch.KafkaNotifier
	if len(cfg.Alerts.KafkaBrokers) > 0 {
		kafkaNotifier, err = dispatch.NewKafkaNotifier(cfg.Alerts.KafkaBrokers, cfg.Alerts.KafkaTopic)
		if err != nil {
			appLogger.Fatal().Err(err).Msg("failed to connect kafka")
		}
		notifiers = append(notifiers, kafkaNotifier)
	} else {
		appLogger.Warn().Msg("kafka alerts not configured")
	}

	dispatcher := dispatch.NewDispatcher(appLogger, notifiers...)
	incidentService := service.NewIncidentService(incidentRepo, snapshots, dispatcher, appLogger)

	var loc locator.Locator = locator.Disabled{}
	if cfg.Locator.Endpoint != "" {
		loc = locator.NewRemoteClient(cfg.Locator.Endpoint, cfg.Locator.Timeout)
	} else {
		appLogger.Warn().Msg("object locator not configured, proximity overrides disabled")
	}

	var an analyzer.Analyzer = analyzer.Disabled{}
	if cfg.Analyzer.APIKey != "" {
		an = analyzer.NewGeminiClient(cfg.Analyzer.Endpoint, cfg.Analyzer.APIKey, cfg.Analyzer.Model, cfg.Analyzer.Timeout)
	} else {
		appLogger.Warn().Msg("scene analyzer not configured, incidents will not be confirmed")
	}

	m := metrics.New()

	processor := pipeline.NewProcessor(pipeline.Config{
		Stride:            cfg.Pipeline.Stride,
		CrashThreshold:    cfg.Pipeline.CrashThreshold,
		EscalateThreshold: cfg.Pipeline.EscalateThreshold,
		ConfirmThreshold:  cfg.Pipeline.ConfirmThreshold,
		Cooldown:          cfg.Pipeline.Cooldown,
		FPS:               cfg.Pipeline.FPS,
		AnalyzerTimeout:   cfg.Analyzer.Timeout,
		LocatorMinConf:    cfg.Locator.MinConfidence,
	}, loc, an, incidentService, appLogger, m)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go processor.RunSweeper(sweepCtx, cfg.Pipeline.SourceTTL)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(processor, incidentService, cfg, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, database, m, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting incident service")

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down server")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			appLogger.Error().Err(err).Msg("failed to close kafka producer")
		}
	}

	appLogger.Info().Msg("server exited")
}
