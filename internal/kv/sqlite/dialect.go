package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/taskbridge/internal/constants"
	_ "modernc.org/sqlite"
)

// Dialect implements SQL dialect for SQLite
type Dialect struct{}

// NewDialect creates a new SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// Placeholder returns SQLite-style placeholders (?)
func (s *Dialect) Placeholder(int) string {
	return "?"
}

// TimeToStorage converts time to SQLite storage format (RFC3339Nano string)
func (s *Dialect) TimeToStorage(t time.Time) interface{} {
	return t.Format(time.RFC3339Nano)
}

// Connect opens a single-connection pool; SQLite allows only one writer.
func (s *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConnections)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxIdleConns)
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		// recycling the only connection would drop an in-memory database
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
		db.SetConnMaxIdleTime(constants.DefaultSQLiteIdleTime)
	}
	return db, nil
}

// EnsureStatement returns the SQLite table creation statement
func (s *Dialect) EnsureStatement(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL, created_at TEXT NOT NULL)", table)
}

// UpsertStatement keeps created_at of an existing row and replaces its value
func (s *Dialect) UpsertStatement(table string) string {
	return fmt.Sprintf("INSERT INTO %s(key, value, created_at) VALUES(?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", table)
}

// DriverName returns the driver name for logging
func (s *Dialect) DriverName() string {
	return "sqlite"
}
