package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/textmend/textmend/internal/broker"
	"github.com/textmend/textmend/internal/config"
	"github.com/textmend/textmend/internal/db"
	"github.com/textmend/textmend/internal/mapper"
	"github.com/textmend/textmend/internal/processor"
	"github.com/textmend/textmend/pkg/encoding"
	"github.com/textmend/textmend/pkg/infra"
	"github.com/textmend/textmend/pkg/metrics"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Repair consumer initializing",
		"unit_id", cfg.UnitID,
	)

	repo, err := db.NewFirebirdRepository(cfg.FirebirdURL, logger)
	if err != nil {
		logger.Error("CRITICAL: Firebird connection failed", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	encOpts := &encoding.Options{
		Verbose:  cfg.Verbose,
		Fallback: cfg.Fallback(),
		Logger:   logger,
	}
	declared, ok := encoding.ParseEncoding(cfg.LegacyCharset)
	if !ok {
		logger.Warn("Unrecognized LEGACY_CHARSET, undetectable text will pass through", "value", cfg.LegacyCharset)
	}
	handler := processor.NewRepairHandler(repo, mapper.NewSQLBuilder(), encOpts, declared, logger)

	go metrics.Serve(ctx, cfg.MetricsAddr, logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0, 0.2)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
			return
		default:
			consumer, err := broker.NewRabbitMQConsumer(cfg.RabbitMQURL, cfg.UnitID, handler, logger)
			if err != nil {
				wait := connBackoff.Next()
				logger.Error("RabbitMQ connection failed, retrying",
					"wait_duration", wait,
					"error", err,
				)

				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
					continue
				}
			}

			connBackoff.Reset()
			logger.Info("Connected to broker, listening for repair requests")

			if err := consumer.Listen(ctx); err != nil {
				logger.Error("Consumer connection lost", "error", err)
				metrics.RabbitMQReconnections.Inc()
			}

			consumer.Close()
		}
	}
}
