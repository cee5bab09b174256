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

const CollectorBatchSize = 50

// LegacyRepository defines the data access contract for the collector
type LegacyRepository interface {
	FetchSuspectRows(ctx context.Context, query string, args ...any) ([]models.SuspectRow, error)
}

// MessageBroker defines the publishing contract
type MessageBroker interface {
	Publish(ctx context.Context, routingKey, correlationID string, payload any) error
	IsHealthy() bool
}

// CollectorService sweeps a legacy Firebird text column and publishes every
// mis-encoded row as a repair request for the unit consumer.
type CollectorService struct {
	repo     LegacyRepository
	broker   MessageBroker
	logger   *slog.Logger
	unitID   int
	table    string
	column   string
	pkColumn string
	scanSQL  string // prebuilt paged select, see internal/mapper
	lastPK   string // watermark: highest primary key already inspected
	dryRun   bool
}

// NewCollectorService creates a collector bound to one table/column pair.
// scanSQL must be the paged select produced by mapper.BuildSuspectSelect.
// With dryRun set, suspect rows are logged but never published.
func NewCollectorService(repo LegacyRepository, broker MessageBroker, unitID int, table, column, pkColumn, scanSQL string, dryRun bool, logger *slog.Logger) *CollectorService {
	return &CollectorService{
		repo:     repo,
		broker:   broker,
		logger:   logger,
		unitID:   unitID,
		table:    table,
		column:   column,
		pkColumn: pkColumn,
		scanSQL:  scanSQL,
		dryRun:   dryRun,
	}
}

// Run starts the polling loop. It blocks until the context is canceled
func (s *CollectorService) Run(ctx context.Context) {
	// Polling interval: 1 second. We sweep page by page and we don't want
	// to hammer the legacy DB.
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	s.logger.Info("Firebird collector started", "unit_id", s.unitID, "table", s.table, "column", s.column)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Collector shutting down...")
			return
		case <-ticker.C:
			// Check broker health before attempting to read DB
			if !s.broker.IsHealthy() {
				s.logger.Warn("Broker is offline, skipping collection cycle")
				continue
			}

			if err := s.processPage(ctx); err != nil {
				s.logger.Error("Collector page cycle failed", "error", err)
			}
		}
	}
}

// processPage fetches the next page above the watermark and publishes every
// row whose bytes fail UTF-8 validation.
func (s *CollectorService) processPage(ctx context.Context) error {
	rows, err := s.repo.FetchSuspectRows(ctx, s.scanSQL, CollectorBatchSize, s.lastPK)
	if err != nil {
		return fmt.Errorf("failed to fetch page: %w", err)
	}

	if len(rows) == 0 {
		// End of table: restart the sweep on the next cycle so rows
		// written since the last pass get inspected too.
		s.lastPK = ""
		return nil
	}

	s.logger.Debug("Inspecting legacy page", "count", len(rows), "after", s.lastPK)

	// Rows are processed in PK order; the watermark only advances past a
	// row once it is published (or found clean), so a failure mid-page
	// resumes at the failed row.
	for _, row := range rows {
		enc := encoding.Detect(row.RawText)
		if enc == encoding.UTF8 {
			s.lastPK = row.PKValue
			continue
		}

		if s.dryRun {
			s.logger.Info("Dry run: suspect row found",
				"table", s.table, "pk", row.PKValue, "encoding", enc.String())
			s.lastPK = row.PKValue
			continue
		}

		if err := s.publishRequest(ctx, row); err != nil {
			return fmt.Errorf("failed to publish row %s: %w", row.PKValue, err)
		}
		s.lastPK = row.PKValue
	}

	return nil
}

func (s *CollectorService) publishRequest(ctx context.Context, row models.SuspectRow) error {
	req := models.RepairRequest{
		EventID:    uuid.NewString(),
		UnitID:     s.unitID,
		TableName:  s.table,
		ColumnName: s.column,
		PKColumn:   s.pkColumn,
		PKValue:    row.PKValue,
		RawText:    row.RawText,
		Timestamp:  time.Now(),
	}

	// Routing key unit.{ID} lets the consumer bind one queue per unit or
	// a wildcard across all of them.
	routingKey := fmt.Sprintf("textmend.unit.%d.%s", s.unitID, s.table)

	if err := s.broker.Publish(ctx, routingKey, req.EventID, req); err != nil {
		return fmt.Errorf("broker publish failed: %w", err)
	}

	metrics.CollectorRowsPublished.WithLabelValues(s.table).Inc()
	return nil
}
