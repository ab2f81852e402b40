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

	"github.com/airsight/air-quality-pipeline/internal/adapter/httpadapter"
	kafkaadapter "github.com/airsight/air-quality-pipeline/internal/adapter/kafka"
	"github.com/airsight/air-quality-pipeline/internal/artifact"
	"github.com/airsight/air-quality-pipeline/internal/config"
	"github.com/airsight/air-quality-pipeline/internal/model"
	"github.com/airsight/air-quality-pipeline/internal/observability"
	"github.com/airsight/air-quality-pipeline/internal/predictor"
	"github.com/airsight/air-quality-pipeline/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	st, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect store", "error", err)
		os.Exit(1)
	}

	remote := artifact.NewClient(cfg.RemoteModelURL, cfg.RemoteModelKey, cfg.RemoteTimeout, logger)
	manager := model.NewManager(st, remote, cfg.ModelsDir, cfg.MinTrainingSamples, clock, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Predictions answer "model unavailable" until the first training run
	// succeeds, so a failed initial load is not fatal.
	if err := manager.LoadActive(ctx); err != nil {
		logger.Warn("no model loaded at startup", "error", err)
	}

	reader := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.ProcessedTopic, cfg.PredictorGroupID, logger)

	cons := predictor.New(reader, manager, st, st, predictor.NewLogNotifier(logger),
		cfg.PredictionHorizon, cfg.TrainInterval, cfg.TrainTimeout, cfg.TrainWindowDays,
		clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, cons, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := cons.Run(ctx); err != nil {
			logger.Error("prediction consumer error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}

	logger.Info("shutdown complete")
}
