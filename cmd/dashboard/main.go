package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/outbreak-dashboard/internal/adapter/diseasesh"
	httpadapter "github.com/couchcryptid/outbreak-dashboard/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/outbreak-dashboard/internal/adapter/kafka"
	"github.com/couchcryptid/outbreak-dashboard/internal/config"
	"github.com/couchcryptid/outbreak-dashboard/internal/dashboard"
	"github.com/couchcryptid/outbreak-dashboard/internal/format"
	"github.com/couchcryptid/outbreak-dashboard/internal/observability"
	"golang.org/x/text/language"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := diseasesh.NewClient(cfg, logger, metrics)
	source := diseasesh.NewCachedSource(client, cfg.UpstreamCacheSize, cfg.UpstreamCacheTTL, nil, metrics)

	// View fan-out is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var publisher dashboard.Publisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka view fan-out enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaViewTopic)
	} else {
		logger.Info("kafka view fan-out disabled")
	}

	engine := dashboard.New(source, publisher, dashboard.OptionsFromConfig(cfg), logger, metrics)
	formatter := format.New(language.MustParse(cfg.DisplayLocale))

	srv := httpadapter.NewServer(cfg.HTTPAddr, engine, formatter, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil {
			logger.Error("dashboard engine error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-engineDone:
		source.Close()
	case <-shutdownCtx.Done():
		logger.Warn("dashboard engine did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
