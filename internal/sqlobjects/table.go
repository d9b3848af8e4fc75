package sqlobjects

import (
	"regexp"
	"sort"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/value"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Column maps an object field to a table column.
type Column struct {
	Name string     `mapstructure:"name" yaml:"name"`
	Type value.Type `mapstructure:"type" yaml:"type"`
}

// Table describes how one internal object type is stored.
type Table struct {
	// Object is the logical object name used in manuals.
	Object string `mapstructure:"object" yaml:"object"`
	// Name is the table name.
	Name     string `mapstructure:"table" yaml:"table"`
	IDColumn string `mapstructure:"id_column" yaml:"id_column"`
	// Identifiers are the fields that identify one row.
	Identifiers []string `mapstructure:"identifiers" yaml:"identifiers"`
	// Columns maps field names to columns.
	Columns map[string]Column `mapstructure:"columns" yaml:"columns"`
	// ChangedColumn holds the last modification time of a row, if any.
	ChangedColumn string `mapstructure:"changed_column" yaml:"changed_column"`
	// Generator names a Firebird generator that supplies new IDs. Without
	// one, the driver's last insert ID is used.
	Generator string `mapstructure:"generator" yaml:"generator"`
}

// Validate checks names against SQL injection and that every identifier is
// a mapped column.
func (t *Table) Validate() error {
	if t.Object == "" {
		return errors.NewValidationError("object", t.Object, "cannot be empty")
	}
	for field, name := range map[string]string{"table": t.Name, "id_column": t.IDColumn} {
		if !identPattern.MatchString(name) {
			return errors.NewValidationError(field, name, "invalid SQL identifier")
		}
	}
	for _, name := range []string{t.ChangedColumn, t.Generator} {
		if name != "" && !identPattern.MatchString(name) {
			return errors.NewValidationError("column", name, "invalid SQL identifier")
		}
	}
	if len(t.Columns) == 0 {
		return errors.NewValidationError("columns", t.Object, "at least one column is required")
	}
	for field, c := range t.Columns {
		if !identPattern.MatchString(c.Name) {
			return errors.NewValidationError("column", c.Name, "invalid SQL identifier")
		}
		if !c.Type.IsValid() {
			return errors.NewValidationError("type", c.Type, "unsupported value type for field "+field)
		}
	}
	for _, id := range t.Identifiers {
		if _, ok := t.Columns[id]; !ok {
			return errors.NewValidationError("identifiers", id, "identifier is not a mapped column")
		}
	}
	return nil
}

// fields returns the mapped field names in sorted order.
func (t *Table) fields() []string {
	out := make([]string, 0, len(t.Columns))
	for f := range t.Columns {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
