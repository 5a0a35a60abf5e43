package postgresql

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/kv/connector"
)

// Store is the PostgreSQL key-value connector
type Store struct {
	connector.SQLStore
	DSN string
}

var _ connector.Connector = (*Store)(nil)

// NewStore creates a new PostgreSQL store
func NewStore() *Store {
	return &Store{SQLStore: connector.SQLStore{Dialect: NewDialect()}}
}

// Load loads configuration into the PostgreSQL store
func (s *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok {
		s.DSN = strings.TrimSpace(dsn)
	}
	return nil
}

// Validate requires a DSN; there is no sensible default server.
func (s *Store) Validate() error {
	if s.DSN == "" {
		return errors.New("postgresql store requires a dsn or host")
	}
	return nil
}

// Connect establishes a connection to PostgreSQL
func (s *Store) Connect() (*sql.DB, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	db, err := s.Dialect.Connect(s.DSN)
	if err != nil {
		return nil, err
	}
	s.DB = db

	common.GetLogger().WithStore("postgresql").Info("PostgreSQL key-value store connected")
	return db, nil
}
