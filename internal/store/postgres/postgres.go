// Package postgres keeps identity links in PostgreSQL. Cycles for one
// integration are serialized with a session advisory lock, so several
// syncbridge processes may share a database.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentstation/syncbridge/internal/backoff"
	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/logging"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS ` + constants.MappingsTable + ` (
	id                      BIGSERIAL PRIMARY KEY,
	date_created            TIMESTAMPTZ NOT NULL DEFAULT now(),
	integration             TEXT NOT NULL,
	internal_object_name    TEXT NOT NULL,
	internal_object_id      TEXT NOT NULL,
	integration_object_name TEXT NOT NULL,
	integration_object_id   TEXT NOT NULL,
	last_sync_date          TIMESTAMPTZ NOT NULL,
	is_deleted              BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE UNIQUE INDEX IF NOT EXISTS ` + constants.MappingsTable + `_live_key
	ON ` + constants.MappingsTable + ` (integration, internal_object_name, internal_object_id, integration_object_name)
	WHERE NOT is_deleted;
CREATE INDEX IF NOT EXISTS ` + constants.MappingsTable + `_integration_object
	ON ` + constants.MappingsTable + ` (integration, integration_object_name, integration_object_id);
`

const columns = `id, date_created, integration, internal_object_name, internal_object_id,
	integration_object_name, integration_object_id, last_sync_date, is_deleted`

// Store is a mapping.Store backed by a pgx pool.
type Store struct {
	pool        *pgxpool.Pool
	maxAttempts int
	minDelay    time.Duration
	maxDelay    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRetry sets how often transient errors are retried and the delays
// between attempts.
func WithRetry(maxAttempts int, minDelay, maxDelay time.Duration) Option {
	return func(s *Store) {
		s.maxAttempts = maxAttempts
		s.minDelay = minDelay
		s.maxDelay = maxDelay
	}
}

// New connects to dsn and creates the mappings table if needed.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.NewConfigError("postgres", "invalid connection string", err)
	}
	config.MaxConns = constants.MaxPoolConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.WrapResource("connect", "postgres", "", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapResource("ping", "postgres", "", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.WrapResource("migrate", "mapping", "", err)
	}

	s := &Store{
		pool:        pool,
		maxAttempts: constants.MaxRetries,
		minDelay:    100 * time.Millisecond,
		maxDelay:    constants.MaxRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	logging.FromContext(ctx).Info().Str("store", "postgres").Msg("mapping store ready")
	return s, nil
}

var (
	_ mapping.Store  = (*Store)(nil)
	_ mapping.Closer = (*Store)(nil)
)

// IsRetryable reports whether err is a transient transaction failure:
// a serialization failure, a deadlock or a lock timeout.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	default:
		return false
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

func (s *Store) retry(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	b := backoff.New(s.minDelay, s.maxDelay, 2)
	return backoff.Retry(ctx, b, s.maxAttempts, IsRetryable, func(attempt int, err error) {
		metrics.StoreRetries.WithLabelValues("postgres", operation).Inc()
		logging.FromContext(ctx).Debug().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Msg("retrying mapping store operation")
	}, op)
}

func scan(rows pgx.Rows) ([]*mapping.ObjectMapping, error) {
	defer rows.Close()
	var out []*mapping.ObjectMapping
	for rows.Next() {
		m := &mapping.ObjectMapping{}
		if err := rows.Scan(&m.ID, &m.DateCreated, &m.Integration, &m.InternalObjectName, &m.InternalObjectID,
			&m.IntegrationObjectName, &m.IntegrationObjectID, &m.LastSyncDate, &m.IsDeleted); err != nil {
			return nil, err
		}
		m.DateCreated = m.DateCreated.UTC()
		m.LastSyncDate = m.LastSyncDate.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) query(ctx context.Context, operation, where string, args ...any) ([]*mapping.ObjectMapping, error) {
	var out []*mapping.ObjectMapping
	err := s.retry(ctx, operation, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, "SELECT "+columns+" FROM "+constants.MappingsTable+" WHERE "+where+" ORDER BY id", args...)
		if err != nil {
			return err
		}
		out, err = scan(rows)
		return err
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
		"integration = $1 AND integration_object_name = $2 AND integration_object_id = $3 AND internal_object_name = $4",
		integration, integrationObjectName, integrationObjectID, internalObjectName)
}

// IntegrationObject implements mapping.Store.
func (s *Store) IntegrationObject(ctx context.Context, integration, internalObjectName, internalObjectID, integrationObjectName string) (*mapping.ObjectMapping, error) {
	return s.pick(ctx, internalObjectName, internalObjectID,
		"integration = $1 AND internal_object_name = $2 AND internal_object_id = $3 AND integration_object_name = $4",
		integration, internalObjectName, internalObjectID, integrationObjectName)
}

// FindByIntegrationObject implements mapping.Store.
func (s *Store) FindByIntegrationObject(ctx context.Context, integration, integrationObjectName, integrationObjectID string) (*mapping.ObjectMapping, error) {
	return s.pick(ctx, integrationObjectName, integrationObjectID,
		"integration = $1 AND integration_object_name = $2 AND integration_object_id = $3",
		integration, integrationObjectName, integrationObjectID)
}

// Save implements mapping.Store.
func (s *Store) Save(ctx context.Context, m *mapping.ObjectMapping) error {
	err := s.retry(ctx, "save", func(ctx context.Context) error {
		if m.ID == 0 {
			created := m.DateCreated
			if created.IsZero() {
				created = time.Now().UTC()
			}
			row := s.pool.QueryRow(ctx, `INSERT INTO `+constants.MappingsTable+`
				(date_created, integration, internal_object_name, internal_object_id,
				 integration_object_name, integration_object_id, last_sync_date, is_deleted)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id, date_created`,
				created, m.Integration, m.InternalObjectName, m.InternalObjectID,
				m.IntegrationObjectName, m.IntegrationObjectID, m.LastSyncDate, m.IsDeleted)
			var id int64
			if err := row.Scan(&id, &created); err != nil {
				return err
			}
			m.ID, m.DateCreated = id, created.UTC()
			return nil
		}

		tag, err := s.pool.Exec(ctx, `UPDATE `+constants.MappingsTable+` SET
				integration = $2, internal_object_name = $3, internal_object_id = $4,
				integration_object_name = $5, integration_object_id = $6,
				last_sync_date = $7, is_deleted = $8
				WHERE id = $1`,
			m.ID, m.Integration, m.InternalObjectName, m.InternalObjectID,
			m.IntegrationObjectName, m.IntegrationObjectID, m.LastSyncDate, m.IsDeleted)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
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

func (s *Store) exec(ctx context.Context, operation, sql string, args ...any) (int, error) {
	var n int64
	err := s.retry(ctx, operation, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, errors.WrapResource(operation, "mapping", "", err)
	}
	return int(n), nil
}

// UpdateIntegrationObject implements mapping.Store.
func (s *Store) UpdateIntegrationObject(ctx context.Context, integration, oldObjectName, oldObjectID, newObjectName, newObjectID string) (int, error) {
	return s.exec(ctx, "remap", `UPDATE `+constants.MappingsTable+`
		SET integration_object_name = $4, integration_object_id = $5
		WHERE integration = $1 AND integration_object_name = $2 AND integration_object_id = $3 AND NOT is_deleted`,
		integration, oldObjectName, oldObjectID, newObjectName, newObjectID)
}

// MarkAsDeleted implements mapping.Store.
func (s *Store) MarkAsDeleted(ctx context.Context, integration string, side mapping.Side, objectName, objectID string) (int, error) {
	var where string
	switch side {
	case mapping.SideInternal:
		where = "internal_object_name = $2 AND internal_object_id = $3"
	case mapping.SideIntegration:
		where = "integration_object_name = $2 AND integration_object_id = $3"
	default:
		return 0, errors.NewValidationError("side", side, "unknown mapping side")
	}
	return s.exec(ctx, "delete", `UPDATE `+constants.MappingsTable+` SET is_deleted = TRUE
		WHERE integration = $1 AND `+where+` AND NOT is_deleted`,
		integration, objectName, objectID)
}

// List implements mapping.Store.
func (s *Store) List(ctx context.Context, filter mapping.Filter) ([]*mapping.ObjectMapping, error) {
	where, args := listWhere(filter)
	return s.query(ctx, "list", where, args...)
}

func listWhere(filter mapping.Filter) (string, []any) {
	where := "TRUE"
	var args []any
	add := func(column, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	add("integration", filter.Integration)
	add("internal_object_name", filter.InternalObjectName)
	add("integration_object_name", filter.IntegrationObjectName)
	if !filter.IncludeDeleted {
		where += " AND NOT is_deleted"
	}
	return where, args
}

// Clear implements mapping.Store. Every lookup reads the database, so there
// is nothing to drop.
func (s *Store) Clear() {}

// Lock implements mapping.Store with a session advisory lock held on a
// dedicated pool connection until release.
func (s *Store) Lock(ctx context.Context, integration string) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	key := "syncbridge:" + integration
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", key); err != nil {
		conn.Release()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.unlock(ctx, conn, integration, key) })
	}, nil
}

func (s *Store) unlock(ctx context.Context, conn *pgxpool.Conn, integration, key string) {
	unlockCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()
	if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("integration", integration).Msg("advisory unlock failed")
		// A connection that still holds the lock must not go back to the pool.
		_ = conn.Conn().Close(unlockCtx)
	}
	conn.Release()
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
