package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/textmend/textmend/internal/broker"
	"github.com/textmend/textmend/internal/config"
	"github.com/textmend/textmend/internal/db"
	"github.com/textmend/textmend/internal/mapper"
	"github.com/textmend/textmend/internal/service"
	"github.com/textmend/textmend/pkg/infra"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	logger.Info("Initializing legacy collector",
		"unit_id", cfg.UnitID,
		"table", cfg.SourceTable,
		"column", cfg.SourceColumn,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fbRepo, err := db.NewFirebirdRepository(cfg.FirebirdURL, logger)
	if err != nil {
		logger.Error("FATAL: Failed to connect to Firebird database", "error", err)
		os.Exit(1)
	}
	defer fbRepo.Close()

	rabbit, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("FATAL: Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer rabbit.Close()

	// The collector publishes to an exchange, so it must exist before the
	// first page goes out. Declare it up front on a throwaway connection.
	if err := setupTopology(cfg.RabbitMQURL); err != nil {
		logger.Error("FATAL: Failed to declare RabbitMQ topology", "error", err)
		os.Exit(1)
	}

	scanSQL, err := mapper.NewSQLBuilder().BuildSuspectSelect(cfg.SourceTable, cfg.SourcePK, cfg.SourceColumn)
	if err != nil {
		logger.Error("FATAL: Invalid source table configuration", "error", err)
		os.Exit(1)
	}

	collector := service.NewCollectorService(fbRepo, rabbit, cfg.UnitID,
		cfg.SourceTable, cfg.SourceColumn, cfg.SourcePK, scanSQL, cfg.DryRun, logger)

	logger.Info("Collector is running, sweeping legacy rows for broken text")

	// Blocks until ctx is canceled.
	collector.Run(ctx)

	logger.Info("Collector service shut down")
}

// setupTopology ensures the repair exchange exists in RabbitMQ.
func setupTopology(amqpURL string) error {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.ExchangeDeclare(
		broker.ExchangeRepair, // "textmend.topic"
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
}
