package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/textmend/textmend/internal/models"
)

type FeedbackRepository interface {
	MarkAsErrorByCorrelationID(ctx context.Context, correlationID string, errLog string) error
}

// FeedbackService closes the loop on dead letters: when a downstream
// consumer fatally rejects a repair event, the DLX routes it here and the
// originating queue row is flagged for inspection.
type FeedbackService struct {
	repo   FeedbackRepository
	logger *slog.Logger
}

func NewFeedbackService(r FeedbackRepository, l *slog.Logger) *FeedbackService {
	return &FeedbackService{repo: r, logger: l}
}

// HandleDeadLetter flags the queue row behind one dead-lettered event.
func (s *FeedbackService) HandleDeadLetter(ctx context.Context, body []byte) error {
	var event models.RepairEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("dead letter body is not a repair event: %w", err)
	}

	// Poison repair requests from the unit queues also land here. They
	// carry no correlation id because they never came from the queue table;
	// there is no row to flag, so log and drop.
	if event.CorrelationID == "" {
		s.logger.Warn("Dead letter without correlation id, dropping", "event_id", event.EventID)
		return nil
	}

	s.logger.Warn("Caught dead letter, flagging originating row",
		"correlation_id", event.CorrelationID,
		"table", event.SourceTable,
	)

	if err := s.repo.MarkAsErrorByCorrelationID(ctx, event.CorrelationID,
		"fatal error reported by downstream consumer"); err != nil {
		return fmt.Errorf("failed to flag row %s: %w", event.CorrelationID, err)
	}

	return nil
}
