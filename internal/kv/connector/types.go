package connector

import (
	"context"
	"database/sql"
	"time"
)

// Connector is implemented by each key-value storage driver.
type Connector interface {
	Connect() (*sql.DB, error)
	Validate() error
	Load(config map[string]interface{}) error
	Ensure(table string) error
	// Get returns found=false for a missing key, never sql.ErrNoRows.
	Get(ctx context.Context, table, key string) (value string, found bool, err error)
	Upsert(ctx context.Context, table, key, value string) error
	Delete(ctx context.Context, table, key string) error
	Clear(ctx context.Context, table string) error
	Close() error
}

// Dialect captures the SQL differences between drivers.
type Dialect interface {
	Placeholder(index int) string
	Connect(dsn string) (*sql.DB, error)
	EnsureStatement(table string) string
	UpsertStatement(table string) string
	TimeToStorage(t time.Time) interface{}
	DriverName() string
}
