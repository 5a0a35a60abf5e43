package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNewStore(t *testing.T) {
	store := NewStore()
	if store == nil || store.Dialect == nil {
		t.Fatal("NewStore() should initialize dialect")
	}
}

func TestStore_Load(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		want   string
	}{
		{"valid dsn", map[string]interface{}{"dsn": "file:test.db"}, "file:test.db"},
		{"valid path", map[string]interface{}{"path": "/tmp/kv.db"}, DSNForPath("/tmp/kv.db")},
		{"empty dsn", map[string]interface{}{"dsn": ""}, ""},
		{"no keys", map[string]interface{}{"other": "value"}, ""},
		{"dsn wrong type", map[string]interface{}{"dsn": 123}, ""},
		{"dsn takes precedence over path", map[string]interface{}{"dsn": "custom", "path": "/tmp/kv.db"}, "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			if err := store.Load(tt.config); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if store.DSN != tt.want {
				t.Errorf("Load() DSN = %v, want %v", store.DSN, tt.want)
			}
		})
	}
}

func TestDSNForPath(t *testing.T) {
	got := DSNForPath("/data/kv.db")
	if got != "file:/data/kv.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" {
		t.Fatalf("DSNForPath = %q", got)
	}
}

func TestStore_NotConnected(t *testing.T) {
	store := NewStore()
	if _, _, err := store.Get(context.Background(), "kv_store", "k"); err == nil {
		t.Fatal("expected error before Connect")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close on unconnected store: %v", err)
	}
}

func TestStore_EnsureAndUpsertStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewStore()
	store.DB = db

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS kv_store (key TEXT PRIMARY KEY")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv_store(key, value, created_at) VALUES(?, ?, ?) ON CONFLICT(key)")).
		WithArgs("k", `it's "quoted"`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Ensure("kv_store"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if err := store.Upsert(context.Background(), "kv_store", "k", `it's "quoted"`); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_GetPaths(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewStore()
	store.DB = db
	q := regexp.QuoteMeta("SELECT value FROM kv_store WHERE key = ?")

	mock.ExpectQuery(q).WithArgs("present").WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("v"))
	mock.ExpectQuery(q).WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectQuery(q).WithArgs("broken").WillReturnError(errors.New("disk I/O error"))

	if v, found, err := store.Get(context.Background(), "kv_store", "present"); err != nil || !found || v != "v" {
		t.Fatalf("present: %q %v %v", v, found, err)
	}
	if v, found, err := store.Get(context.Background(), "kv_store", "missing"); err != nil || found || v != "" {
		t.Fatalf("missing: %q %v %v", v, found, err)
	}
	if _, _, err := store.Get(context.Background(), "kv_store", "broken"); err == nil {
		t.Fatal("expected read error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_DeleteAndClearErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewStore()
	store.DB = db
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kv_store WHERE key = ?")).WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kv_store")).WillReturnError(errors.New("database is locked"))

	if err := store.Delete(context.Background(), "kv_store", "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Clear(context.Background(), "kv_store"); err == nil {
		t.Fatal("expected Clear() error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	store := NewStore()
	if err := store.Load((&Config{Path: path}).ToMap()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := store.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Ensure("kv_store"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := store.Upsert(ctx, "kv_store", "a", "1"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Upsert(ctx, "kv_store", "a", "2"); err != nil {
		t.Fatalf("Upsert overwrite: %v", err)
	}
	if v, found, err := store.Get(ctx, "kv_store", "a"); err != nil || !found || v != "2" {
		t.Fatalf("Get = %q %v %v", v, found, err)
	}
	if err := store.Delete(ctx, "kv_store", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := store.Get(ctx, "kv_store", "a"); found {
		t.Fatal("key should be gone")
	}
}
