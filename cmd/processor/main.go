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
	"github.com/airsight/air-quality-pipeline/internal/config"
	"github.com/airsight/air-quality-pipeline/internal/join"
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

	reader := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.RawTopic, cfg.ProcessorGroupID, logger)
	writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.ProcessedTopic, logger)

	proc := join.New(reader, st, writer, cfg.StaleStateTTL,
		clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, proc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := proc.Run(ctx); err != nil {
			logger.Error("join processor error", "error", err)
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
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
