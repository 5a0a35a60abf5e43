package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/taskbridge/internal/common"
)

// SQLStore implements the data operations of Connector over database/sql.
// Drivers embed it and add Connect, Validate and Load.
type SQLStore struct {
	DB      *sql.DB
	Dialect Dialect
}

func (s *SQLStore) ready() error {
	if s.DB == nil {
		return errors.New("store is not connected")
	}
	return nil
}

// Ensure creates the key-value table if it does not exist
func (s *SQLStore) Ensure(table string) error {
	if err := s.ready(); err != nil {
		return err
	}
	logger := common.GetLogger().WithStore(s.Dialect.DriverName())
	q := s.Dialect.EnsureStatement(table)
	logger.Debug("ensuring key-value table", "table", table)
	if _, err := s.DB.Exec(q); err != nil {
		logger.Error("failed to create key-value table", "error", err, "table", table)
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// Get reads the value stored under key
func (s *SQLStore) Get(ctx context.Context, table, key string) (string, bool, error) {
	if err := s.ready(); err != nil {
		return "", false, err
	}
	q := fmt.Sprintf("SELECT value FROM %s WHERE key = %s", table, s.Dialect.Placeholder(1))
	var v string
	err := s.DB.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key: %w", err)
	}
	return v, true, nil
}

// Upsert inserts or replaces the value stored under key
func (s *SQLStore) Upsert(ctx context.Context, table, key, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	q := s.Dialect.UpsertStatement(table)
	if _, err := s.DB.ExecContext(ctx, q, key, value, s.Dialect.TimeToStorage(time.Now().UTC())); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLStore) Delete(ctx context.Context, table, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE key = %s", table, s.Dialect.Placeholder(1))
	if _, err := s.DB.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Clear removes every key
func (s *SQLStore) Clear(ctx context.Context, table string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("failed to clear table: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
