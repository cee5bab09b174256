package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/textmend/textmend/internal/models"
	"github.com/textmend/textmend/pkg/encoding"
	"github.com/textmend/textmend/pkg/metrics"
)

const MaxBatchMemoryThresholdMB = 20

// Repository defines the contract for repair queue persistence
type Repository interface {
	FetchAndClaim(ctx context.Context, batchSize int) ([]models.RepairEntry, error)
	MarkRepaired(ctx context.Context, id int64, fixed string, encoding string, replaced int) error
	MarkAsError(ctx context.Context, id int64, errLog string) error
	MarkManyAsPending(ctx context.Context, ids []int64, note string, strategy models.RevertStrategy) error
}

// BrokerClient defines the contract for audit event publishing
type BrokerClient interface {
	Publish(ctx context.Context, routingKey, correlationID string, payload any) error
}

// RepairService drains the Postgres repair queue: classify each entry,
// rewrite it as UTF-8, persist the result and publish an audit event.
type RepairService struct {
	repo    Repository
	broker  BrokerClient
	logger  *slog.Logger
	encOpts *encoding.Options
	unitID  int
}

func NewRepairService(r Repository, b BrokerClient, encOpts *encoding.Options, unitID int, l *slog.Logger) *RepairService {
	return &RepairService{
		repo:    r,
		broker:  b,
		logger:  l,
		encOpts: encOpts,
		unitID:  unitID,
	}
}

// ProcessNextBatch claims and repairs a batch of queue entries. It reacts
// instantly to shutdown signals and reverts unprocessed entries atomically.
func (s *RepairService) ProcessNextBatch(ctx context.Context, batchSize int) error {
	start := time.Now()

	entries, err := s.repo.FetchAndClaim(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("fetch failure: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	// Observe actual batch size
	metrics.BatchSize.Observe(float64(len(entries)))

	defer func() {
		// Observe total batch processing duration
		metrics.BatchDuration.Observe(time.Since(start).Seconds())

		if len(entries) > 0 {
			s.logger.Info("Batch cycle telemetry",
				"count", len(entries),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}()

	var batchBytes int
	for _, e := range entries {
		batchBytes += e.EstimateBytes()
	}
	if batchMB := batchBytes / (1024 * 1024); batchMB > MaxBatchMemoryThresholdMB {
		s.logger.Warn("Heavy batch detected: memory pressure risk",
			"size_mb", batchMB,
			"threshold_mb", MaxBatchMemoryThresholdMB,
			"count", len(entries),
		)
	}

	for i, e := range entries {
		select {
		case <-ctx.Done():
			s.logger.Warn("Shutdown signal received. Reverting remaining entries.")
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			remainingIDs := s.extractRemainingIDs(entries, i)

			if err := s.repo.MarkManyAsPending(cleanupCtx, remainingIDs, "graceful_shutdown", models.StrategyInfraFailure); err != nil {
				s.logger.Error("CRITICAL: Failed to revert entries during shutdown", "error", err, "count", len(remainingIDs))
			}
			cancel()
			return ctx.Err()
		default:
		}

		l := s.logger.With("correlation_id", e.CorrelationID)

		detected := encoding.Detect(e.RawText)
		fixed, err := encoding.Fix(e.RawText, s.encOpts)
		if err != nil {
			// Dispatch failures are deterministic: retrying cannot help.
			l.Error("Repair failed, marking entry as error", "error", err)
			_ = s.repo.MarkAsError(ctx, e.ID, err.Error())
			metrics.TextsRepaired.WithLabelValues("error", detected.String()).Inc()
			continue
		}

		replaced := countReplaced(e.RawText, detected)
		status := "repaired"
		if detected == encoding.UTF8 || detected == encoding.Unknown {
			status = "unchanged"
		}

		// Persist before publishing: the queue row is the source of truth,
		// the event is advisory.
		if err := s.repo.MarkRepaired(ctx, e.ID, fixed, detected.String(), replaced); err != nil {
			l.Error("Repaired but failed to update status in DB", "error", err)
			if i+1 < len(entries) {
				cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				remainingIDs := s.extractRemainingIDs(entries, i+1)
				_ = s.repo.MarkManyAsPending(cleanupCtx, remainingIDs, "db_checkpoint_failure", models.StrategyRepairFailure)
				cancel()
			}

			metrics.TextsRepaired.WithLabelValues("error", detected.String()).Inc()
			return fmt.Errorf("db checkpoint failure: %w", err)
		}

		event := models.RepairEvent{
			EventID:       uuid.NewString(),
			CorrelationID: e.CorrelationID,
			UnitID:        s.unitID,
			SourceTable:   e.SourceTable,
			SourceColumn:  e.SourceColumn,
			PKValue:       e.PKValue,
			Encoding:      detected.String(),
			FixedText:     fixed,
			Replaced:      replaced,
			Timestamp:     time.Now(),
		}
		routingKey := fmt.Sprintf("textmend.repaired.%s", detected.String())

		if err := s.broker.Publish(ctx, routingKey, e.CorrelationID, event); err != nil {
			l.Error("Broker publish failed, aborting batch", "error", err)
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			remainingIDs := s.extractRemainingIDs(entries, i+1)

			if err := s.repo.MarkManyAsPending(cleanupCtx, remainingIDs, "broker_offline", models.StrategyInfraFailure); err != nil {
				s.logger.Error("CRITICAL: Failed to revert entries after broker failure", "error", err)
			}
			cancel()

			// The row itself is already repaired; only the audit trail is
			// missing, so the rest of the batch waits for the next cycle.
			metrics.TextsRepaired.WithLabelValues(status, detected.String()).Inc()
			metrics.BytesReplaced.Add(float64(replaced))
			return fmt.Errorf("broker failure: %w", err)
		}

		metrics.TextsRepaired.WithLabelValues(status, detected.String()).Inc()
		metrics.BytesReplaced.Add(float64(replaced))
	}

	return nil
}

func (s *RepairService) extractRemainingIDs(entries []models.RepairEntry, start int) []int64 {
	ids := make([]int64, 0, len(entries)-start)
	for i := start; i < len(entries); i++ {
		ids = append(ids, entries[i].ID)
	}
	return ids
}

// countReplaced estimates how many bytes the repair touched: every high
// byte for the single-byte encodings, zero for valid UTF-8 or pass-through.
func countReplaced(raw []byte, enc encoding.Encoding) int {
	if enc != encoding.Latin1 && enc != encoding.Windows1252 {
		return 0
	}
	n := 0
	for _, c := range raw {
		if c >= 0x80 {
			n++
		}
	}
	return n
}
