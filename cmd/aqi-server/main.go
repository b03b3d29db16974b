package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/aqi-prediction-service/internal/adapter/gemini"
	httpadapter "github.com/couchcryptid/aqi-prediction-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/aqi-prediction-service/internal/adapter/kafka"
	"github.com/couchcryptid/aqi-prediction-service/internal/config"
	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/model"
	"github.com/couchcryptid/aqi-prediction-service/internal/observability"
	"github.com/couchcryptid/aqi-prediction-service/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// A missing or corrupt artifact leaves the service up in unavailable mode.
	handle := model.Load(cfg.ModelPath, logger)

	var publisher pipeline.EventPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		publisher = writer
		logger.Info("prediction events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("prediction events disabled")
	}

	var readings domain.ReadingsProvider
	if cfg.ReadingsEnabled {
		client := gemini.NewClient(cfg, logger, metrics)
		readings = gemini.NewCachedProvider(client, cfg.ReadingsCacheSize, cfg.ReadingsCacheTTL, metrics)
		logger.Info("city readings enabled",
			"model", cfg.ReadingsModel, "cache_size", cfg.ReadingsCacheSize, "cache_ttl", cfg.ReadingsCacheTTL)
	} else {
		logger.Info("city readings disabled")
	}

	svc := pipeline.New(handle, publisher, logger, metrics, cfg.PredictVariant, cfg.TestPredictVariant)
	srv := httpadapter.NewServer(cfg, svc, svc, readings, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		if writer != nil {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
