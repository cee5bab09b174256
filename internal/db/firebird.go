package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/textmend/textmend/internal/models"

	_ "github.com/nakagami/firebirdsql"
)

// FirebirdRepository gives access to the legacy database whose text columns
// predate UTF-8. Reads deliver raw bytes exactly as stored; writes apply
// repaired text back inside a transaction.
type FirebirdRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFirebirdRepository initializes a connection pool for Firebird 2.5
func NewFirebirdRepository(connString string, logger *slog.Logger) (*FirebirdRepository, error) {
	db, err := sql.Open("firebirdsql", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open firebird connection: %v", err)
	}

	// Connection pool settings optimized for legacy systems
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("firebird ping failed: %v", err)
	}

	logger.Info("Connected to Firebird successfully", "dialect", 3)

	return &FirebirdRepository{
		db:     db,
		logger: logger,
	}, nil
}

// FetchSuspectRows reads a page of rows from the configured legacy table.
// The query is prebuilt (see internal/mapper) because Firebird cannot bind
// identifiers as parameters.
func (r *FirebirdRepository) FetchSuspectRows(ctx context.Context, query string, args ...any) ([]models.SuspectRow, error) {
	opCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(opCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suspect rows: %v", err)
	}
	defer rows.Close()

	var out []models.SuspectRow
	for rows.Next() {
		var row models.SuspectRow
		if err := rows.Scan(&row.PKValue, &row.RawText); err != nil {
			return nil, fmt.Errorf("failed to scan suspect row: %v", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// IsRepaired checks if an event_id was already applied to this database.
// This is the core mechanism for absolute idempotency.
func (r *FirebirdRepository) IsRepaired(ctx context.Context, eventID string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT FIRST 1 1 FROM REPAIR_CONTROL WHERE EVENT_ID = ?`

	var exists bool
	err := r.db.QueryRowContext(opCtx, query, eventID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check idempotency: %v", err)
	}

	return true, nil
}

// MarkRepaired records the event_id in the REPAIR_CONTROL table within the
// same transaction as the text update.
func (r *FirebirdRepository) MarkRepaired(ctx context.Context, tx *sql.Tx, eventID string) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `INSERT INTO REPAIR_CONTROL (EVENT_ID) VALUES (?)`

	_, err := tx.ExecContext(opCtx, query, eventID)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "violation") || strings.Contains(msg, "unique") || strings.Contains(msg, "primary") {
			r.logger.Warn("Idempotency race detected: event_id already exists in DB", "id", eventID)
			return nil
		}

		return fmt.Errorf("failed to mark event as applied: %v", err)
	}
	return nil
}

// BeginTx starts a transaction with ReadCommitted isolation level
func (r *FirebirdRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
}

// Close gracefully shuts down the database connection pool
func (r *FirebirdRepository) Close() error {
	r.logger.Info("Closing Firebird connection pool")
	return r.db.Close()
}
