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
	"github.com/airsight/air-quality-pipeline/internal/adapter/openaq"
	"github.com/airsight/air-quality-pipeline/internal/adapter/openweather"
	"github.com/airsight/air-quality-pipeline/internal/collector"
	"github.com/airsight/air-quality-pipeline/internal/config"
	"github.com/airsight/air-quality-pipeline/internal/observability"
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

	st, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect store", "error", err)
		os.Exit(1)
	}

	weather := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.FetchTimeout, logger)
	pollution := openaq.NewClient(cfg.OpenAQAPIKey, cfg.FetchTimeout, logger)
	writer := kafkaadapter.NewAsyncWriter(cfg.KafkaBrokers, cfg.RawTopic, logger)

	col := collector.New(st, weather, pollution, st, writer,
		cfg.CycleInterval, cfg.LocationDelay, cfg.IdleBackoff,
		clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, col, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := col.Run(ctx); err != nil {
			logger.Error("collector error", "error", err)
		}
	}()

	<-ctx.Done()
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
