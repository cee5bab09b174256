package mapper

import (
	"fmt"
	"regexp"
	"strings"
)

// SQLBuilder generates the Firebird statements whose table and column names
// arrive at runtime. Identifiers cannot be bound as parameters, so they are
// validated and interpolated; values always go through placeholders.
type SQLBuilder struct{}

// NewSQLBuilder initializes a new builder instance
func NewSQLBuilder() *SQLBuilder {
	return &SQLBuilder{}
}

// identPattern matches plain Firebird identifiers. Quoted or exotic names
// are rejected rather than escaped: the legacy schema has none.
var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_$]*$`)

func checkIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	// Standardizing to uppercase to prevent case-sensitivity issues in Firebird
	return strings.ToUpper(name), nil
}

// BuildSuspectSelect generates the paged scan over a legacy text column:
// SELECT FIRST ? pk, col FROM table WHERE pk > ? ORDER BY pk.
// The caller feeds the page size and the last primary key seen.
func (b *SQLBuilder) BuildSuspectSelect(tableName, pkColumn, textColumn string) (string, error) {
	table, err := checkIdent(tableName)
	if err != nil {
		return "", fmt.Errorf("table for suspect select: %w", err)
	}
	pk, err := checkIdent(pkColumn)
	if err != nil {
		return "", fmt.Errorf("pk column for suspect select: %w", err)
	}
	col, err := checkIdent(textColumn)
	if err != nil {
		return "", fmt.Errorf("text column for suspect select: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT FIRST ? %s, %s FROM %s WHERE %s > ? ORDER BY %s",
		pk, col, table, pk, pk,
	)
	return query, nil
}

// BuildTextUpdate generates the write-back of a repaired value:
// UPDATE table SET col = ? WHERE pk = ?.
func (b *SQLBuilder) BuildTextUpdate(tableName, textColumn, pkColumn string) (string, error) {
	table, err := checkIdent(tableName)
	if err != nil {
		return "", fmt.Errorf("table for text update: %w", err)
	}
	col, err := checkIdent(textColumn)
	if err != nil {
		return "", fmt.Errorf("text column for text update: %w", err)
	}
	pk, err := checkIdent(pkColumn)
	if err != nil {
		return "", fmt.Errorf("pk column for text update: %w", err)
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s = ? WHERE %s = ?",
		table, col, pk,
	)
	return query, nil
}
