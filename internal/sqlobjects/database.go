// Package sqlobjects stores internal objects in a SQL database. It finds
// rows by identifier, reads their current state and applies the creates and
// updates of an order. SQLite and Firebird are supported.
package sqlobjects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/nakagami/firebirdsql"
	"github.com/spf13/cast"
	"golang.org/x/text/encoding"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/executioner"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/objects"
	"github.com/agentstation/syncbridge/pkg/order"
	"github.com/agentstation/syncbridge/pkg/report"
	"github.com/agentstation/syncbridge/pkg/value"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverFirebird = "firebirdsql"
)

// Database reads and writes internal objects.
type Database struct {
	db      *sql.DB
	tables  map[string]*Table
	order   []string
	builder *SQLBuilder
	charset encoding.Encoding
	txOpts  *sql.TxOptions
}

// Option configures a Database.
type Option func(*Database)

// WithCharset decodes text columns returned as bytes from charset.
func WithCharset(charset encoding.Encoding) Option {
	return func(d *Database) {
		d.charset = charset
	}
}

func withIsolation(level sql.IsolationLevel) Option {
	return func(d *Database) {
		d.txOpts = &sql.TxOptions{Isolation: level}
	}
}

// WithUpperCase upper-cases table and column names.
func WithUpperCase() Option {
	return func(d *Database) {
		d.builder = NewSQLBuilder(true)
	}
}

// Open connects with driver and dsn. Firebird connections are limited to a
// single connection and decode WIN1252 text.
func Open(ctx context.Context, driver, dsn string, tables []*Table, opts ...Option) (*Database, error) {
	switch driver {
	case DriverSQLite, DriverFirebird:
	default:
		return nil, errors.NewValidationError("driver", driver, "unsupported driver")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.NewConfigError(driver, "failed to open database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if driver == DriverFirebird {
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
		opts = append([]Option{WithUpperCase(), WithCharset(Windows1252), withIsolation(sql.LevelReadCommitted)}, opts...)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.WrapResource("ping", driver, "", err)
	}

	d, err := New(db, tables, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.FromContext(ctx).Info().Str("driver", driver).Int("tables", len(tables)).Msg("internal object database ready")
	return d, nil
}

// New wraps an open database.
func New(db *sql.DB, tables []*Table, opts ...Option) (*Database, error) {
	if db == nil {
		return nil, errors.NewValidationError("db", nil, "cannot be nil")
	}
	d := &Database{db: db, tables: map[string]*Table{}, builder: NewSQLBuilder(false)}
	for _, opt := range opts {
		opt(d)
	}
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, ok := d.tables[t.Object]; ok {
			return nil, errors.NewValidationError("object", t.Object, "object registered twice")
		}
		d.tables[t.Object] = t
		d.order = append(d.order, t.Object)
	}
	return d, nil
}

var _ executioner.Dispatcher = (*Database)(nil)

// Objects returns an object type per table, searching rows by identifier.
func (d *Database) Objects() []objects.Object {
	out := make([]objects.Object, 0, len(d.order))
	for _, name := range d.order {
		t := d.tables[name]
		out = append(out, &objects.Definition{
			ObjectName:  t.Object,
			Entity:      t.Name,
			Identifiers: t.Identifiers,
			Finder: func(ctx context.Context, identifiers map[string]value.NormalizedValue) ([]string, error) {
				return d.find(ctx, t, identifiers)
			},
		})
	}
	return out
}

func (d *Database) table(objectName string) (*Table, error) {
	t, ok := d.tables[objectName]
	if !ok {
		return nil, errors.NewObjectNotSupportedError("internal", objectName)
	}
	return t, nil
}

func (d *Database) find(ctx context.Context, t *Table, identifiers map[string]value.NormalizedValue) ([]string, error) {
	var conds []string
	var args []any
	for _, field := range t.Identifiers {
		v, ok := identifiers[field]
		if !ok || v.IsNil() {
			continue
		}
		col := t.Columns[field]
		switch col.Type {
		case value.TypeEmail:
			conds = append(conds, "LOWER("+d.builder.ident(col.Name)+") = ?")
		default:
			conds = append(conds, d.builder.ident(col.Name)+" = ?")
		}
		args = append(args, formatValue(v.Normalized()))
	}
	if len(conds) == 0 {
		return nil, nil
	}

	id := d.builder.ident(t.IDColumn)
	query := d.builder.BuildSelect(t.Name, []string{t.IDColumn}, nil) +
		" WHERE " + strings.Join(conds, " AND ") + " ORDER BY " + id
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapResource("find", t.Object, "", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, errors.WrapResource("find", t.Object, "", err)
		}
		ids = append(ids, d.text(id))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("find", t.Object, "", err)
	}
	return ids, nil
}

func (d *Database) text(v any) string {
	if b, ok := v.([]byte); ok {
		return decodeText(d.charset, b)
	}
	return cast.ToString(v)
}

func (d *Database) raw(v any) any {
	if b, ok := v.([]byte); ok {
		return decodeText(d.charset, b)
	}
	return v
}

// Read implements syncprocess.InternalReader. A missing row yields
// ObjectNotFound.
func (d *Database) Read(ctx context.Context, objectName, objectID string) (*report.Object, error) {
	t, err := d.table(objectName)
	if err != nil {
		return nil, err
	}

	fields := t.fields()
	columns := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		columns = append(columns, t.Columns[f].Name)
	}
	if t.ChangedColumn != "" {
		columns = append(columns, t.ChangedColumn)
	}

	dest := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	query := d.builder.BuildSelect(t.Name, columns, []string{t.IDColumn})
	err = d.db.QueryRowContext(ctx, query, objectID).Scan(ptrs...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewObjectNotFoundError(objectName, objectID)
	}
	if err != nil {
		return nil, errors.WrapResource("read", objectName, objectID, err)
	}

	var changed *time.Time
	if t.ChangedColumn != "" && dest[len(fields)] != nil {
		if ts, err := cast.ToTimeE(d.raw(dest[len(fields)])); err == nil {
			ts = ts.UTC()
			changed = &ts
		}
	}

	o := report.NewObject(objectName, objectID, changed)
	for i, f := range fields {
		v, err := value.New(t.Columns[f].Type, d.raw(dest[i]))
		if err != nil {
			return nil, errors.WrapResource("read", objectName, objectID, fmt.Errorf("field %s: %w", f, err))
		}
		o.AddField(report.Field{Name: f, Value: v, State: report.FieldStateUnchanged})
	}
	return o, nil
}

func (d *Database) row(t *Table, c *order.ObjectChange) (map[string]any, error) {
	data := map[string]any{}
	for field, v := range c.Payload() {
		col, ok := t.Columns[field]
		if !ok {
			return nil, errors.NewFieldNotFoundError(t.Object, field)
		}
		data[col.Name] = v.Original()
	}
	if t.ChangedColumn != "" {
		data[t.ChangedColumn] = time.Now().UTC()
	}
	return data, nil
}

// UpdateObjects implements executioner.Dispatcher. Each row is written in
// its own statement; failures are recorded per change.
func (d *Database) UpdateObjects(ctx context.Context, e *executioner.UpdateEvent) error {
	t, err := d.table(e.Object.Name())
	if err != nil {
		return err
	}
	logger := logging.FromContext(ctx)

	for _, c := range e.Changes {
		data, err := d.row(t, c)
		if err != nil {
			e.Fail(c, err)
			continue
		}
		query, args, err := d.builder.BuildUpdate(t.Name, t.IDColumn, c.ObjectID, data)
		if err != nil {
			e.Fail(c, errors.WrapResource("update", t.Object, c.ObjectID, err))
			continue
		}
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			e.Fail(c, errors.WrapResource("update", t.Object, c.ObjectID, err))
			continue
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			e.Fail(c, errors.NewObjectNotFoundError(t.Object, c.ObjectID))
			continue
		}
		logger.Debug().Str("object", t.Object).Str("object_id", c.ObjectID).Int("fields", len(data)).Msg("row updated")
	}
	return nil
}

// CreateObjects implements executioner.Dispatcher. Tables with a generator
// draw the new ID from it inside the insert transaction.
func (d *Database) CreateObjects(ctx context.Context, e *executioner.CreateEvent) error {
	t, err := d.table(e.Object.Name())
	if err != nil {
		return err
	}
	logger := logging.FromContext(ctx)

	for _, c := range e.Changes {
		data, err := d.row(t, c)
		if err != nil {
			e.Fail(c, err)
			continue
		}
		id, err := d.insert(ctx, t, data)
		if err != nil {
			e.Fail(c, errors.WrapResource("create", t.Object, "", err))
			continue
		}
		e.Created(c, id)
		logger.Debug().Str("object", t.Object).Str("object_id", id).Msg("row created")
	}
	return nil
}

func (d *Database) insert(ctx context.Context, t *Table, data map[string]any) (string, error) {
	tx, err := d.db.BeginTx(ctx, d.txOpts)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	if t.Generator != "" {
		var next any
		q := fmt.Sprintf("SELECT GEN_ID(%s, 1) FROM RDB$DATABASE", d.builder.ident(t.Generator))
		if err := tx.QueryRowContext(ctx, q).Scan(&next); err != nil {
			return "", fmt.Errorf("next id from %s: %w", t.Generator, err)
		}
		id = d.text(next)
		data[t.IDColumn] = next
	}

	query, args, err := d.builder.BuildInsert(t.Name, data)
	if err != nil {
		return "", err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	if id == "" {
		n, err := res.LastInsertId()
		if err != nil {
			return "", err
		}
		id = cast.ToString(n)
	}
	return id, tx.Commit()
}

// Close closes the database.
func (d *Database) Close() error {
	return d.db.Close()
}
