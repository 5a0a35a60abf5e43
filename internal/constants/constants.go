package constants

import "time"

// Store Constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// Connection pool settings
	DefaultPostgresMaxConnections = 10
	DefaultPostgresMaxIdleConns   = 2
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// SQLite DSN parameters
	DefaultSQLiteBusyTimeoutMS = 5000

	// DefaultKVTable holds the bridge's key-value pairs
	DefaultKVTable = "kv_store"
	// DefaultReentryTable keeps pending re-entry actions out of the app's keys
	DefaultReentryTable = "kv_reentry"
	// DefaultDBFileName is used when the sqlite driver has no path configured
	DefaultDBFileName = "taskbridge.db"

	// DefaultKVLockStripes bounds the per-key lock table
	DefaultKVLockStripes = 64
)

// Time and Duration Constants
const (
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)

// Relay Constants
const (
	DefaultRelayAddr       = "127.0.0.1:8765"
	DefaultWSWriteTimeout  = 10 * time.Second
	DefaultWSPingInterval  = 30 * time.Second
	DefaultReconnectDelay  = 500 * time.Millisecond
	DefaultReconnectMaxGap = 10 * time.Second
)

// Notification Constants
const (
	DefaultNotificationTitle   = "Task Bridge"
	DefaultNotificationMessage = "No active task"
)
