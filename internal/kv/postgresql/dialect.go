package postgresql

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/taskbridge/internal/constants"
)

// Dialect implements SQL dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// Placeholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// TimeToStorage converts time to PostgreSQL storage format (native time.Time)
func (p *Dialect) TimeToStorage(t time.Time) interface{} {
	return t
}

// Connect establishes a connection to PostgreSQL with connection pooling
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

// EnsureStatement returns the PostgreSQL table creation statement
func (p *Dialect) EnsureStatement(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW())", table)
}

// UpsertStatement keeps created_at of an existing row and replaces its value
func (p *Dialect) UpsertStatement(table string) string {
	return fmt.Sprintf("INSERT INTO %s(key, value, created_at) VALUES($1, $2, $3) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value", table)
}

// DriverName returns the driver name for logging
func (p *Dialect) DriverName() string {
	return "postgresql"
}
