// Package sqlite keeps identity links in a SQLite database file. It suits
// single-process deployments; cycles are serialized in process.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/agentstation/syncbridge/internal/backoff"
	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS ` + constants.MappingsTable + ` (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	date_created            TIMESTAMP NOT NULL,
	integration             TEXT NOT NULL,
	internal_object_name    TEXT NOT NULL,
	internal_object_id      TEXT NOT NULL,
	integration_object_name TEXT NOT NULL,
	integration_object_id   TEXT NOT NULL,
	last_sync_date          TIMESTAMP NOT NULL,
	is_deleted              BOOLEAN NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS ` + constants.MappingsTable + `_live_key
	ON ` + constants.MappingsTable + ` (integration, internal_object_name, internal_object_id, integration_object_name)
	WHERE NOT is_deleted;
CREATE INDEX IF NOT EXISTS ` + constants.MappingsTable + `_integration_object
	ON ` + constants.MappingsTable + ` (integration, integration_object_name, integration_object_id);
`

const columns = `id, date_created, integration, internal_object_name, internal_object_id,
	integration_object_name, integration_object_id, last_sync_date, is_deleted`

// Store is a mapping.Store backed by database/sql and go-sqlite3.
type Store struct {
	db     *sql.DB
	locker *mapping.KeyedLocker
	now    func() time.Time
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewConfigError("sqlite", "failed to open database", err)
	}

	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.WrapResource("ping", "sqlite", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapResource("migrate", "mapping", path, err)
	}

	logging.FromContext(ctx).Info().Str("store", "sqlite").Str("path", path).Msg("mapping store ready")
	return &Store{
		db:     db,
		locker: mapping.NewKeyedLocker(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

var (
	_ mapping.Store  = (*Store)(nil)
	_ mapping.Closer = (*Store)(nil)
)

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *Store) retry(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	b := backoff.New(10*time.Millisecond, time.Second, 2)
	return backoff.Retry(ctx, b, constants.MaxRetries, isBusy, func(attempt int, err error) {
		metrics.StoreRetries.WithLabelValues("sqlite", operation).Inc()
		logging.FromContext(ctx).Debug().Err(err).Str("operation", operation).Int("attempt", attempt).Msg("database busy; retrying")
	}, op)
}

func (s *Store) query(ctx context.Context, operation, where string, args ...any) ([]*mapping.ObjectMapping, error) {
	var out []*mapping.ObjectMapping
	err := s.retry(ctx, operation, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM "+constants.MappingsTable+" WHERE "+where+" ORDER BY id", args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			m := &mapping.ObjectMapping{}
			if err := rows.Scan(&m.ID, &m.DateCreated, &m.Integration, &m.InternalObjectName, &m.InternalObjectID,
				&m.IntegrationObjectName, &m.IntegrationObjectID, &m.LastSyncDate, &m.IsDeleted); err != nil {
				return err
			}
			m.DateCreated = m.DateCreated.UTC()
			m.LastSyncDate = m.LastSyncDate.UTC()
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.WrapResource(operation, "mapping", "", err)
	}
	return out, nil
}

func (s *Store) pick(ctx context.Context, object, id, where string, args ...any) (*mapping.ObjectMapping, error) {
	candidates, err := s.query(ctx, "find", where, args...)
	if err != nil {
		return nil, err
	}
	picked := mapping.Pick(candidates)
	if picked == nil {
		return nil, errors.NewObjectNotFoundError(object, id)
	}
	return picked, nil
}

// InternalObject implements mapping.Store.
func (s *Store) InternalObject(ctx context.Context, integration, integrationObjectName, integrationObjectID, internalObjectName string) (*mapping.ObjectMapping, error) {
	return s.pick(ctx, integrationObjectName, integrationObjectID,
		"integration = ? AND integration_object_name = ? AND integration_object_id = ? AND internal_object_name = ?",
		integration, integrationObjectName, integrationObjectID, internalObjectName)
}

// IntegrationObject implements mapping.Store.
func (s *Store) IntegrationObject(ctx context.Context, integration, internalObjectName, internalObjectID, integrationObjectName string) (*mapping.ObjectMapping, error) {
	return s.pick(ctx, internalObjectName, internalObjectID,
		"integration = ? AND internal_object_name = ? AND internal_object_id = ? AND integration_object_name = ?",
		integration, internalObjectName, internalObjectID, integrationObjectName)
}

// FindByIntegrationObject implements mapping.Store.
func (s *Store) FindByIntegrationObject(ctx context.Context, integration, integrationObjectName, integrationObjectID string) (*mapping.ObjectMapping, error) {
	return s.pick(ctx, integrationObjectName, integrationObjectID,
		"integration = ? AND integration_object_name = ? AND integration_object_id = ?",
		integration, integrationObjectName, integrationObjectID)
}

// Save implements mapping.Store.
func (s *Store) Save(ctx context.Context, m *mapping.ObjectMapping) error {
	err := s.retry(ctx, "save", func(ctx context.Context) error {
		if m.ID == 0 {
			created := m.DateCreated
			if created.IsZero() {
				created = s.now()
			}
			res, err := s.db.ExecContext(ctx, `INSERT INTO `+constants.MappingsTable+`
				(date_created, integration, internal_object_name, internal_object_id,
				 integration_object_name, integration_object_id, last_sync_date, is_deleted)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				created.UTC(), m.Integration, m.InternalObjectName, m.InternalObjectID,
				m.IntegrationObjectName, m.IntegrationObjectID, m.LastSyncDate.UTC(), m.IsDeleted)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			m.ID, m.DateCreated = id, created.UTC()
			return nil
		}

		res, err := s.db.ExecContext(ctx, `UPDATE `+constants.MappingsTable+` SET
				integration = ?, internal_object_name = ?, internal_object_id = ?,
				integration_object_name = ?, integration_object_id = ?,
				last_sync_date = ?, is_deleted = ?
				WHERE id = ?`,
			m.Integration, m.InternalObjectName, m.InternalObjectID,
			m.IntegrationObjectName, m.IntegrationObjectID, m.LastSyncDate.UTC(), m.IsDeleted, m.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errors.NewObjectNotFoundError("mapping", fmt.Sprint(m.ID))
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return errors.NewValidationError("mapping", m.Key(), "a live mapping already exists")
	case errors.IsObjectNotFound(err):
		return err
	default:
		return errors.WrapResource("save", "mapping", fmt.Sprint(m.ID), err)
	}
}

func (s *Store) exec(ctx context.Context, operation, query string, args ...any) (int, error) {
	var n int64
	err := s.retry(ctx, operation, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, errors.WrapResource(operation, "mapping", "", err)
	}
	return int(n), nil
}

// UpdateIntegrationObject implements mapping.Store.
func (s *Store) UpdateIntegrationObject(ctx context.Context, integration, oldObjectName, oldObjectID, newObjectName, newObjectID string) (int, error) {
	return s.exec(ctx, "remap", `UPDATE `+constants.MappingsTable+`
		SET integration_object_name = ?, integration_object_id = ?
		WHERE integration = ? AND integration_object_name = ? AND integration_object_id = ? AND NOT is_deleted`,
		newObjectName, newObjectID, integration, oldObjectName, oldObjectID)
}

// MarkAsDeleted implements mapping.Store.
func (s *Store) MarkAsDeleted(ctx context.Context, integration string, side mapping.Side, objectName, objectID string) (int, error) {
	var where string
	switch side {
	case mapping.SideInternal:
		where = "internal_object_name = ? AND internal_object_id = ?"
	case mapping.SideIntegration:
		where = "integration_object_name = ? AND integration_object_id = ?"
	default:
		return 0, errors.NewValidationError("side", side, "unknown mapping side")
	}
	return s.exec(ctx, "delete", `UPDATE `+constants.MappingsTable+` SET is_deleted = 1
		WHERE integration = ? AND `+where+` AND NOT is_deleted`,
		integration, objectName, objectID)
}

// List implements mapping.Store.
func (s *Store) List(ctx context.Context, filter mapping.Filter) ([]*mapping.ObjectMapping, error) {
	where := "1 = 1"
	var args []any
	add := func(column, v string) {
		if v != "" {
			where += " AND " + column + " = ?"
			args = append(args, v)
		}
	}
	add("integration", filter.Integration)
	add("internal_object_name", filter.InternalObjectName)
	add("integration_object_name", filter.IntegrationObjectName)
	if !filter.IncludeDeleted {
		where += " AND NOT is_deleted"
	}
	return s.query(ctx, "list", where, args...)
}

// Clear implements mapping.Store. Lookups always read the database.
func (s *Store) Clear() {}

// Lock implements mapping.Store.
func (s *Store) Lock(ctx context.Context, integration string) (func(), error) {
	return s.locker.Lock(ctx, integration)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
