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
	"github.com/textmend/textmend/internal/service"
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

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		slog.Error("Fatal error connecting to Postgres", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	go metrics.Serve(ctx, cfg.MetricsAddr, logger)

	janitorDone := make(chan struct{})
	go runMaintenance(ctx, postgres, cfg.MaintenanceInterval, janitorDone)
	go runFeedbackLoop(ctx, postgres, cfg)

	slog.Info("Repair daemon started", "pid", os.Getpid())

	runMainLoop(ctx, postgres, cfg, janitorDone)
}

func runMainLoop(ctx context.Context, repo *db.PostgresRepository, cfg *config.Config, janitorDone chan struct{}) {
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0, 0.2)
	encOpts := &encoding.Options{
		Verbose:  cfg.Verbose,
		Fallback: cfg.Fallback(),
		Logger:   slog.Default(),
	}

	var rabbitmq *broker.RabbitMQClient
	var repairService *service.RepairService

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down main loop...")
			if rabbitmq != nil {
				rabbitmq.Close()
			}
			<-janitorDone // wait for the janitor to finish
			slog.Info("Shutdown complete")
			return
		default:
			// Lifecycle: make sure the broker link is up
			if rabbitmq == nil || !rabbitmq.IsHealthy() {
				if rabbitmq != nil {
					rabbitmq.Close()
					metrics.RabbitMQReconnections.Inc()
				}

				newRabbit, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, slog.Default())
				if err != nil {
					wait := backoff.Next()
					slog.Error("RabbitMQ link failure, retrying", "wait", wait, "error", err)

					select {
					case <-time.After(wait):
						continue
					case <-ctx.Done():
						return
					}
				}

				slog.Info("RabbitMQ link established")
				rabbitmq = newRabbit
				backoff.Reset()
				// Recreate the service to inject the healthy client
				repairService = service.NewRepairService(repo, rabbitmq, encOpts, cfg.UnitID, slog.Default())
			}

			if err := repairService.ProcessNextBatch(ctx, cfg.BatchSize); err != nil {
				wait := backoff.Next()
				slog.Error("Batch processing error", "retry_in", wait, "error", err)

				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					return
				}
			}

			// Success: reset backoff and wait out the poll interval
			backoff.Reset()

			select {
			case <-time.After(cfg.PollInterval):
				continue
			case <-ctx.Done():
				return
			}
		}
	}
}

// runFeedbackLoop drains the dead-letter queue so repairs that a downstream
// consumer fatally rejected get flagged back in the queue table.
func runFeedbackLoop(ctx context.Context, repo *db.PostgresRepository, cfg *config.Config) {
	feedback := service.NewFeedbackService(repo, slog.Default())
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0, 0.2)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			consumer, err := broker.NewDeadLetterConsumer(cfg.RabbitMQURL, feedback.HandleDeadLetter, slog.Default())
			if err != nil {
				wait := backoff.Next()
				slog.Error("Dead-letter consumer connection failed, retrying", "wait", wait, "error", err)

				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					return
				}
			}

			backoff.Reset()
			if err := consumer.Listen(ctx); err != nil {
				slog.Error("Dead-letter consumer connection lost", "error", err)
			}
			consumer.Close()
		}
	}
}

func runMaintenance(ctx context.Context, repo *db.PostgresRepository, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("Janitor: starting structural health checks")

			affected, err := repo.ResetStaleEntries(ctx, 10)
			if err != nil {
				slog.Error("Janitor: failed to reset stale entries", "error", err)
			} else if affected > 0 {
				slog.Warn("Janitor: rescued stuck entries", "count", affected)
			}

			if err := repo.MoveToDLQ(ctx); err != nil {
				slog.Error("Janitor: DLQ maintenance failure", "error", err)
			}

			if backlog, err := repo.Backlog(ctx); err == nil {
				metrics.QueueBacklog.Set(float64(backlog))
			}
			if dead, err := repo.DLQSize(ctx); err == nil {
				metrics.DLQSize.Set(float64(dead))
			}

		case <-ctx.Done():
			slog.Info("Janitor: stopping maintenance goroutine")
			return
		}
	}
}
