package kv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/kv/connector"
	"github.com/loykin/taskbridge/internal/kv/postgresql"
	"github.com/loykin/taskbridge/internal/kv/sqlite"
	"github.com/loykin/taskbridge/internal/metrics"
	"github.com/loykin/taskbridge/internal/retry"
)

var (
	ErrClosed   = errors.New("key-value store is closed")
	ErrEmptyKey = errors.New("key must not be empty")
)

// Store is a durable string-to-string map shared by every component of the
// bridge. Writes to the same key are serialized; other keys proceed concurrently.
type Store struct {
	conn    connector.Connector
	parent  *Store
	driver  string
	table   string
	locks   *keyLocks
	retry   *retry.Config
	metrics *metrics.Metrics
	logger  *common.Logger
	closed  atomic.Bool
}

// Option customizes Open
type Option func(*Store)

// WithRetry overrides the retry policy for transient store errors
func WithRetry(rc *retry.Config) Option {
	return func(s *Store) { s.retry = rc }
}

// WithMetrics records operation counts
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithConnector replaces the driver chosen from Config, mainly for tests.
func WithConnector(c connector.Connector) Option {
	return func(s *Store) { s.conn = c }
}

// Open connects the configured driver and creates the table if absent.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	s := &Store{
		driver: cfg.Driver,
		table:  cfg.Table,
		locks:  newKeyLocks(constants.DefaultKVLockStripes),
		retry:  retry.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = common.GetLogger().WithStore(s.driver)

	if s.conn == nil {
		switch cfg.Driver {
		case DriverPostgresql:
			s.conn = postgresql.NewStore()
		default:
			s.conn = sqlite.NewStore()
		}
		if cfg.DriverConfig != nil {
			if err := s.conn.Load(cfg.DriverConfig.ToMap()); err != nil {
				return nil, fmt.Errorf("load %s config: %w", cfg.Driver, err)
			}
		}
		if err := s.conn.Validate(); err != nil {
			return nil, err
		}
		if _, err := s.conn.Connect(); err != nil {
			return nil, err
		}
	}

	if err := retry.WithRetry(ctx, s.retry, func() error { return s.conn.Ensure(s.table) }); err != nil {
		_ = s.conn.Close()
		return nil, err
	}
	s.logger.Info("key-value store ready", "table", s.table)
	return s, nil
}

// Driver returns the normalized driver name
func (s *Store) Driver() string { return s.driver }

func (s *Store) isClosed() bool {
	return s.closed.Load() || (s.parent != nil && s.parent.closed.Load())
}

func (s *Store) check(key string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.check(key); err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	err := s.set(ctx, key, value)
	s.metrics.RecordKV("set", err)
	return err
}

func (s *Store) set(ctx context.Context, key, value string) error {
	err := retry.WithRetry(ctx, s.retry, func() error {
		return s.conn.Upsert(ctx, s.table, key, value)
	})
	if err != nil {
		s.logger.WithKey(key).Error("failed to set key", "error", err)
	}
	return err
}

// Put stores *value under key; a nil value removes the key.
func (s *Store) Put(ctx context.Context, key string, value *string) error {
	if value == nil {
		return s.Remove(ctx, key)
	}
	return s.Set(ctx, key, *value)
}

// Get returns the value for key or def when the key is absent.
func (s *Store) Get(ctx context.Context, key, def string) (string, error) {
	if err := s.check(key); err != nil {
		return def, err
	}
	v, ok, err := s.get(ctx, key)
	s.metrics.RecordKV("get", err)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

type lookup struct {
	value string
	found bool
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	res, err := retry.Value(ctx, s.retry, func() (lookup, error) {
		v, ok, err := s.conn.Get(ctx, s.table, key)
		return lookup{v, ok}, err
	})
	if err != nil {
		s.logger.WithKey(key).Error("failed to get key", "error", err)
	}
	return res.value, res.found, err
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	err := s.remove(ctx, key)
	s.metrics.RecordKV("remove", err)
	return err
}

func (s *Store) remove(ctx context.Context, key string) error {
	err := retry.WithRetry(ctx, s.retry, func() error {
		return s.conn.Delete(ctx, s.table, key)
	})
	if err != nil {
		s.logger.WithKey(key).Error("failed to remove key", "error", err)
	}
	return err
}

// Clear removes every key. It waits for in-flight writes on all keys.
func (s *Store) Clear(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	unlock := s.locks.lockAll()
	defer unlock()

	err := retry.WithRetry(ctx, s.retry, func() error {
		return s.conn.Clear(ctx, s.table)
	})
	s.metrics.RecordKV("clear", err)
	if err != nil {
		s.logger.Error("failed to clear store", "error", err)
	}
	return err
}

// Update performs a read-modify-write of key under its lock. fn receives the
// current value and whether it exists; returning nil removes the key.
func (s *Store) Update(ctx context.Context, key string, fn func(current string, found bool) (*string, error)) error {
	if err := s.check(key); err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	cur, ok, err := s.get(ctx, key)
	if err != nil {
		s.metrics.RecordKV("update", err)
		return err
	}
	next, err := fn(cur, ok)
	if err != nil {
		return err
	}
	if next == nil {
		if !ok {
			return nil
		}
		err = s.remove(ctx, key)
	} else {
		err = s.set(ctx, key, *next)
	}
	s.metrics.RecordKV("update", err)
	return err
}

// Sibling returns a store over another table on the same connection, created
// if absent. Keys in different tables never collide, and Clear on one table
// leaves the other untouched. Closing a sibling leaves the connection open.
func (s *Store) Sibling(ctx context.Context, table string) (*Store, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	if table == s.table {
		return nil, fmt.Errorf("sibling table %q is the parent table", table)
	}
	root := s
	if s.parent != nil {
		root = s.parent
	}
	sib := &Store{
		conn:    s.conn,
		parent:  root,
		driver:  s.driver,
		table:   table,
		locks:   newKeyLocks(constants.DefaultKVLockStripes),
		retry:   s.retry,
		metrics: s.metrics,
		logger:  s.logger,
	}
	if err := retry.WithRetry(ctx, s.retry, func() error { return s.conn.Ensure(table) }); err != nil {
		return nil, err
	}
	s.logger.Debug("sibling table ready", "table", table)
	return sib, nil
}

// Close releases the underlying connection. Further calls return ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	unlock := s.locks.lockAll()
	defer unlock()
	if s.parent != nil {
		return nil
	}
	return s.conn.Close()
}
