package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/textmend/textmend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository owns the text_repair_queue table: suspect text values
// enqueued by upstream systems, drained by the repair daemon.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresRepository(ctx context.Context, connString string, logger *slog.Logger) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		return nil, fmt.Errorf("no response from postgres: %w", err)
	}

	return &PostgresRepository{pool: p, logger: logger}, nil
}

// FetchAndClaim atomically moves a batch of pending entries to 'processing'
// and returns them. SKIP LOCKED lets several daemon instances drain the
// queue without stepping on each other.
func (r *PostgresRepository) FetchAndClaim(ctx context.Context, batchSize int) ([]models.RepairEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE text_repair_queue
        SET status = 'processing', updated_at = CURRENT_TIMESTAMP
        WHERE id IN (
            SELECT id FROM text_repair_queue
            WHERE status = 'pending'
            ORDER BY created_at ASC
            LIMIT $1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, correlation_id, source_table, source_column, pk_value, raw_text, attempts
    `

	rows, err := tx.Query(ctx, query, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending entries: %w", err)
	}
	defer rows.Close()

	var entries []models.RepairEntry
	for rows.Next() {
		var entry models.RepairEntry
		err := rows.Scan(
			&entry.ID,
			&entry.CorrelationID,
			&entry.SourceTable,
			&entry.SourceColumn,
			&entry.PKValue,
			&entry.RawText,
			&entry.Attempts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repair entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	return entries, nil
}

// MarkRepaired stores the rewritten text and the detected encoding.
func (r *PostgresRepository) MarkRepaired(ctx context.Context, id int64, fixed string, encoding string, replaced int) error {
	query := `
		UPDATE text_repair_queue
		SET status = 'repaired',
		    fixed_text = $2,
		    detected_encoding = $3,
		    replaced_bytes = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, fixed, encoding, replaced)
	return err
}

func (r *PostgresRepository) MarkAsError(ctx context.Context, id int64, errLog string) error {
	query := `
		UPDATE text_repair_queue
		SET status = 'error',
		    attempts = attempts + 1,
		    error_log = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, errLog)
	return err
}

// MarkManyAsPending hands claimed entries back to the queue after a
// mid-batch failure. Infra failures keep the attempt counter; repair
// failures increment it so a poisonous entry eventually drains to the DLQ.
func (r *PostgresRepository) MarkManyAsPending(ctx context.Context, ids []int64, note string, strategy models.RevertStrategy) error {
	if len(ids) == 0 {
		return nil
	}

	bump := 0
	if strategy == models.StrategyRepairFailure {
		bump = 1
	}

	query := `
		UPDATE text_repair_queue
		SET status = 'pending',
		    attempts = attempts + $2,
		    error_log = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ANY($1)
	`
	_, err := r.pool.Exec(ctx, query, ids, bump, note)
	if err != nil {
		return fmt.Errorf("failed to revert %d entries: %w", len(ids), err)
	}
	return nil
}

// MarkAsErrorByCorrelationID records a failure reported back by a unit
// consumer through the dead-letter feedback queue.
func (r *PostgresRepository) MarkAsErrorByCorrelationID(ctx context.Context, correlationID string, errLog string) error {
	query := `
		UPDATE text_repair_queue
		SET status = 'error',
		    error_log = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE correlation_id = $1
	`
	_, err := r.pool.Exec(ctx, query, correlationID, errLog)
	return err
}

// ResetStaleEntries rescues rows stuck in 'processing', usually left behind
// by a daemon that died mid-batch.
func (r *PostgresRepository) ResetStaleEntries(ctx context.Context, olderThanMinutes int) (int64, error) {
	query := `
		UPDATE text_repair_queue
		SET status = 'pending', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'processing'
		  AND updated_at < CURRENT_TIMESTAMP - make_interval(mins => $1)
	`
	tag, err := r.pool.Exec(ctx, query, olderThanMinutes)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MoveToDLQ parks entries that exhausted their attempts so the main queue
// stays drainable. They wait for manual inspection.
func (r *PostgresRepository) MoveToDLQ(ctx context.Context) error {
	const maxAttempts = 5

	query := `
		UPDATE text_repair_queue
		SET status = 'dead', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'error' AND attempts >= $1
	`
	tag, err := r.pool.Exec(ctx, query, maxAttempts)
	if err != nil {
		return fmt.Errorf("dlq maintenance failed: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.logger.Warn("Moved poisonous entries to DLQ", "count", n)
	}
	return nil
}

// Backlog counts entries still waiting for repair, feeding the lag gauge.
func (r *PostgresRepository) Backlog(ctx context.Context) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM text_repair_queue WHERE status IN ('pending', 'processing')`
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count backlog: %w", err)
	}
	return n, nil
}

// DLQSize counts parked entries for the DLQ gauge.
func (r *PostgresRepository) DLQSize(ctx context.Context) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM text_repair_queue WHERE status = 'dead'`
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dlq: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}
