package models

import "time"

// RevertStrategy tells the repository how to hand claimed entries back to
// the queue after a failure mid-batch.
type RevertStrategy string

const (
	// StrategyInfraFailure keeps the attempt counter untouched: the broker
	// or the database was down, the text itself is not suspect.
	StrategyInfraFailure RevertStrategy = "infra"

	// StrategyRepairFailure increments attempts so a poisonous entry
	// eventually drains into the DLQ.
	StrategyRepairFailure RevertStrategy = "repair"
)

// RepairEntry is a row of the text_repair_queue table in Postgres: one
// suspect text value lifted out of some source system, waiting for the
// repair daemon to classify and rewrite it.
type RepairEntry struct {
	ID            int64  `db:"id"`
	CorrelationID string `db:"correlation_id"`
	SourceTable   string `db:"source_table"`
	SourceColumn  string `db:"source_column"`
	PKValue       string `db:"pk_value"`
	RawText       []byte `db:"raw_text"`
	Attempts      int    `db:"attempts"`
}

// EstimateBytes approximates the in-memory weight of an entry, used by the
// repair loop to warn about oversized batches.
func (e RepairEntry) EstimateBytes() int {
	return len(e.RawText) + len(e.SourceTable) + len(e.SourceColumn) + len(e.PKValue) + 64
}

// RepairEvent is the JSON message published after an entry is repaired. It
// carries the full outcome so downstream consumers never need to re-read
// the queue row.
type RepairEvent struct {
	EventID       string    `json:"event_id"` // UUID for tracing
	CorrelationID string    `json:"correlation_id"`
	UnitID        int       `json:"unit_id"`
	SourceTable   string    `json:"source_table"`
	SourceColumn  string    `json:"source_column"`
	PKValue       string    `json:"pk_value"`
	Encoding      string    `json:"encoding"` // detected source encoding
	FixedText     string    `json:"fixed_text"`
	Replaced      int       `json:"replaced"` // bytes substituted or translated
	Timestamp     time.Time `json:"timestamp"`
}

// RepairRequest is the unit-to-consumer message: a legacy row whose text
// should be fixed and written back into the legacy database.
type RepairRequest struct {
	EventID    string    `json:"event_id"`
	UnitID     int       `json:"unit_id"`
	TableName  string    `json:"table_name"`
	ColumnName string    `json:"column_name"`
	PKColumn   string    `json:"pk_column"`
	PKValue    string    `json:"pk_value"`
	RawText    []byte    `json:"raw_text"` // base64 over the wire
	Timestamp  time.Time `json:"timestamp"`
}

// SuspectRow is one legacy row fetched for inspection: the primary key and
// the raw column bytes, untouched by any charset conversion.
type SuspectRow struct {
	PKValue string
	RawText []byte
}

// TableRegistry whitelists the legacy tables the consumer may touch and
// maps each to its primary key column. Anything outside this map is a
// fatal, non-retryable message.
var TableRegistry = map[string]string{
	"CLIENTES":   "ID_CLIENTE",
	"PRODUTOS":   "ID_PRODUTO",
	"OBSERVACAO": "ID_OBS",
	"CONTRATOS":  "ID_CONTRATO",
}
