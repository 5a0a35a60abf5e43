package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/kv/connector"
)

// Store is the SQLite key-value connector
type Store struct {
	connector.SQLStore
	DSN string
}

var _ connector.Connector = (*Store)(nil)

// NewStore creates a new SQLite store
func NewStore() *Store {
	return &Store{SQLStore: connector.SQLStore{Dialect: NewDialect()}}
}

// DSNForPath builds the DSN used for a database file
func DSNForPath(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, constants.DefaultSQLiteBusyTimeoutMS)
}

// Load loads configuration into the SQLite store
func (s *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		s.DSN = dsn
		return nil
	}
	if path, ok := config["path"].(string); ok && path != "" {
		s.DSN = DSNForPath(path)
	}
	return nil
}

// Connect establishes the connection. An empty DSN means an in-memory database.
func (s *Store) Connect() (*sql.DB, error) {
	if s.DSN == "" {
		s.DSN = ":memory:"
	}
	db, err := s.Dialect.Connect(s.DSN)
	if err != nil {
		return nil, err
	}
	s.DB = db

	common.GetLogger().WithStore("sqlite").Info("SQLite key-value store connected")
	return db, nil
}

// Validate performs basic validation (default implementation)
func (s *Store) Validate() error {
	return nil
}
