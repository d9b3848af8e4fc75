// Package constants provides shared constants used throughout the syncbridge codebase.
// This includes timeouts, retry limits, file permissions, and default names
// that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultTimeout is the standard timeout for general store operations
	DefaultTimeout = 10 * time.Second

	// SyncTimeout is the timeout for a single sync cycle
	SyncTimeout = 30 * time.Minute

	// LockTimeout bounds how long a cycle waits for the integration lock
	LockTimeout = 2 * time.Minute

	// PublishTimeout is the timeout for a broker publish confirmation
	PublishTimeout = 5 * time.Second

	// ShutdownTimeout is the grace period for the metrics server
	ShutdownTimeout = 5 * time.Second

	// DefaultSyncInterval is the default interval between scheduled sync cycles
	DefaultSyncInterval = 5 * time.Minute

	// RetryBackoff is the base backoff duration for retries
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff is the maximum backoff duration for retries
	MaxRetryBackoff = 30 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants
const (
	// MaxRetries is the maximum number of retry attempts for retryable store errors
	MaxRetries = 3

	// MaxOpenConns caps connections for database/sql stores
	MaxOpenConns = 10

	// MaxPoolConns caps the Postgres pool size
	MaxPoolConns = 10
)

// Default names
const (
	// InternalIntegration names the local side of every sync.
	InternalIntegration = "internal"

	// DefaultConfigName is the config file name looked up in home and cwd
	DefaultConfigName = ".syncbridge"

	// DefaultExchange is the default RabbitMQ exchange for sync notifications
	DefaultExchange = "syncbridge.notifications"

	// MappingsTable is the table holding identity links in SQL stores
	MappingsTable = "sync_object_mappings"
)

// Format constants
const (
	// TimeFormatISO8601 is the ISO 8601 time format
	TimeFormatISO8601 = time.RFC3339

	// TimeFormatHuman is a human-readable time format
	TimeFormatHuman = "Jan 2, 2006 at 3:04pm MST"
)
