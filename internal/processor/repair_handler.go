package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/textmend/textmend/internal/db"
	"github.com/textmend/textmend/internal/mapper"
	"github.com/textmend/textmend/internal/models"
	"github.com/textmend/textmend/pkg/encoding"
	"github.com/textmend/textmend/pkg/metrics"
)

// RepairHandler applies repair requests to the legacy Firebird database:
// classify the raw bytes, rewrite them as UTF-8 and update the source row,
// with idempotency guaranteed by the REPAIR_CONTROL table.
type RepairHandler struct {
	repo     *db.FirebirdRepository
	mapper   *mapper.SQLBuilder
	logger   *slog.Logger
	encOpts  *encoding.Options
	declared encoding.Encoding // charset the legacy DB claims, Unknown if unset
}

// NewRepairHandler creates a new instance of the repair orchestrator.
// declared is the charset the legacy database claims to use; it is only
// consulted when detection finds no usable evidence in the raw bytes.
func NewRepairHandler(repo *db.FirebirdRepository, m *mapper.SQLBuilder, encOpts *encoding.Options, declared encoding.Encoding, logger *slog.Logger) *RepairHandler {
	return &RepairHandler{
		repo:     repo,
		mapper:   m,
		logger:   logger,
		encOpts:  encOpts,
		declared: declared,
	}
}

// ProcessRequest executes the complete repair cycle with internal retry for
// lock contention. Errors prefixed with FATAL: must not be requeued.
func (h *RepairHandler) ProcessRequest(ctx context.Context, req models.RepairRequest) (err error) {
	start := time.Now()
	tableName := strings.ToUpper(req.TableName)

	defer func() {
		duration := time.Since(start).Seconds()
		status := "success"

		if err != nil {
			if strings.HasPrefix(err.Error(), "FATAL:") {
				status = "fatal_error"
			} else {
				status = "transient_error"
			}
		}

		metrics.ConsumerDuration.WithLabelValues(status, tableName).Observe(duration)
	}()

	l := h.logger.With(
		"event_id", req.EventID,
		"table", tableName,
		"pk_value", req.PKValue,
	)

	// Whitelist & Metadata Validation
	pkColumn, allowed := models.TableRegistry[tableName]
	if !allowed {
		l.Error("Fatal: table not allowed in whitelist", "table", tableName)
		return fmt.Errorf("FATAL: table %s is not whitelisted", tableName)
	}
	if req.PKColumn != "" && !strings.EqualFold(req.PKColumn, pkColumn) {
		l.Error("Fatal: pk column mismatch", "declared", req.PKColumn, "registry", pkColumn)
		return fmt.Errorf("FATAL: pk column %s does not match registry for %s", req.PKColumn, tableName)
	}

	// Idempotency Check (fast check, short timeout) before touching any lock
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	alreadyDone, err := h.repo.IsRepaired(checkCtx, req.EventID)
	cancel()

	if err != nil {
		return fmt.Errorf("idempotency check failed: %v", err)
	}
	if alreadyDone {
		l.Info("Request already applied, skipping to ACK")
		return nil
	}

	// Classify and rewrite. When detection finds no usable evidence we fall
	// back to the charset the legacy DB declares; with no declared charset
	// the bytes pass through unchanged and the event is still recorded as
	// applied so it never loops.
	detected := encoding.Detect(req.RawText)
	var fixed string
	if detected == encoding.Unknown && h.declared != encoding.Unknown {
		fixed, err = encoding.Decode(req.RawText, h.declared, h.encOpts)
	} else {
		fixed, err = encoding.Fix(req.RawText, h.encOpts)
	}
	if err != nil {
		return fmt.Errorf("FATAL: encoding repair failed: %v", err)
	}

	if detected == encoding.UTF8 {
		l.Debug("Text already valid UTF-8, recording no-op repair")
	}

	// Transaction Retry Loop
	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		txCtx, txCancel := context.WithTimeout(ctx, 30*time.Second)
		err = h.executeTransaction(txCtx, req, tableName, pkColumn, fixed)
		txCancel()

		if err == nil {
			l.Info("Successfully applied repair to Firebird", "encoding", detected.String())
			return nil
		}

		// Detect Deadlock/Lock Conflict
		if h.isDeadlock(err) {
			lastErr = err

			metrics.ConsumerRetries.WithLabelValues(tableName).Inc()

			// Internal linear backoff for locks (quick retry strategy)
			// Attempt 1: 200ms, Attempt 2: 400ms, Attempt 3: 600ms
			backoff := time.Duration(attempt) * 200 * time.Millisecond

			l.Warn("Firebird lock contention detected, retrying internally",
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)

			time.Sleep(backoff)
			continue
		}

		// Non-recoverable error (syntax, constraint violation, etc)
		// Fail fast without retrying
		return err
	}

	return fmt.Errorf("failed after %d attempts (last error: %v)", maxRetries, lastErr)
}

// executeTransaction encapsulates the atomic write operation
func (h *RepairHandler) executeTransaction(ctx context.Context, req models.RepairRequest, tableName, pkColumn, fixed string) error {
	tx, err := h.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %v", err)
	}
	// Safety: Rollback is a no-op if Commit was already called
	defer tx.Rollback()

	query, err := h.mapper.BuildTextUpdate(tableName, req.ColumnName, pkColumn)
	if err != nil {
		return fmt.Errorf("FATAL: sql build failed: %v", err)
	}

	if _, err := tx.ExecContext(ctx, query, fixed, req.PKValue); err != nil {
		return fmt.Errorf("execution error: %v", err)
	}

	// Mark as applied inside the same transaction
	if err := h.repo.MarkRepaired(ctx, tx, req.EventID); err != nil {
		return fmt.Errorf("failed to mark repair control: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %v", err)
	}

	return nil
}

// isDeadlock detects common Firebird concurrency errors
func (h *RepairHandler) isDeadlock(err error) bool {
	msg := strings.ToLower(err.Error())
	// Firebird error codes/messages for locking:
	// - deadlock
	// - lock conflict
	// - update conflicts with concurrent update
	// - 335544336 (ISC error code for deadlock)
	return strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "lock conflict") ||
		strings.Contains(msg, "concurrent update") ||
		strings.Contains(msg, "335544336")
}
