package sqlobjects

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SQLBuilder renders INSERT and UPDATE statements with ? placeholders.
// Columns are emitted in sorted order so statements are deterministic.
type SQLBuilder struct {
	upper bool
}

// NewSQLBuilder creates a builder. With upper set, table and column names
// are upper-cased, which legacy Firebird schemas expect.
func NewSQLBuilder(upper bool) *SQLBuilder {
	return &SQLBuilder{upper: upper}
}

func (b *SQLBuilder) ident(name string) string {
	if b.upper {
		return strings.ToUpper(name)
	}
	return name
}

func sortedKeys(data map[string]any, skip string) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if skip != "" && strings.EqualFold(k, skip) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildInsert generates an INSERT statement for data keyed by column.
func (b *SQLBuilder) BuildInsert(tableName string, data map[string]any) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("no data provided for insert on table %s", tableName)
	}

	keys := sortedKeys(data, "")
	columns := make([]string, 0, len(keys))
	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		columns = append(columns, b.ident(k))
		placeholders = append(placeholders, "?")
		args = append(args, formatValue(data[k]))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		b.ident(tableName),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args, nil
}

// BuildUpdate generates an UPDATE statement keyed by pkColumn. The key
// column is never part of the SET clause.
func (b *SQLBuilder) BuildUpdate(tableName, pkColumn string, pkValue any, data map[string]any) (string, []any, error) {
	keys := sortedKeys(data, pkColumn)
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("no data provided for update on table %s", tableName)
	}

	setClauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		setClauses = append(setClauses, b.ident(k)+" = ?")
		args = append(args, formatValue(data[k]))
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = ?",
		b.ident(tableName),
		strings.Join(setClauses, ", "),
		b.ident(pkColumn),
	)
	args = append(args, formatValue(pkValue))
	return query, args, nil
}

// BuildSelect generates a SELECT of columns filtered by equality on each
// where column, joined with AND.
func (b *SQLBuilder) BuildSelect(tableName string, columns []string, where []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = b.ident(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), b.ident(tableName))
	if len(where) > 0 {
		conds := make([]string, len(where))
		for i, w := range where {
			conds[i] = b.ident(w) + " = ?"
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query
}

// formatValue converts Go values to forms every supported driver accepts:
// booleans become 1/0 and timestamps a plain date-time literal.
func formatValue(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		return val.UTC().Format("2006-01-02 15:04:05")
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format("2006-01-02 15:04:05")
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
		if t, err := time.Parse("2006-01-02", val); err == nil {
			return t.Format("2006-01-02")
		}
		return val
	default:
		return val
	}
}
