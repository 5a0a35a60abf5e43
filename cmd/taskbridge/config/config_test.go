package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/taskbridge/internal/kv"
	"github.com/loykin/taskbridge/internal/kv/postgresql"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskbridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigDoc_Load_NotRegularFile(t *testing.T) {
	var c ConfigDoc
	if err := c.Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory path (not a regular file)")
	}
}

func TestConfigDoc_Load(t *testing.T) {
	path := writeConfig(t, `
http:
  insecure: true
  min_tls_version: "1.2"
  timeout: 15s
store:
  type: sqlite
  table: bridge_kv
  sqlite:
    path: "  ./data/bridge.db  "
relay:
  addr: 127.0.0.1:9000
  jwt_secret: s3cret
notification:
  title: Focus
logging:
  level: debug
  format: json
`)
	var c ConfigDoc
	if err := c.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Store.SQLite.Path != "./data/bridge.db" {
		t.Fatalf("path not trimmed: %q", c.Store.SQLite.Path)
	}

	httpOpts, err := c.HTTPOptions()
	if err != nil {
		t.Fatalf("HTTPOptions: %v", err)
	}
	if !httpOpts.TlsConfig.InsecureSkipVerify || httpOpts.TlsConfig.MinVersion != tls.VersionTLS12 || httpOpts.Timeout != 15*time.Second {
		t.Fatalf("http options = %+v", httpOpts)
	}

	opts, err := c.BridgeOptions()
	if err != nil {
		t.Fatalf("BridgeOptions: %v", err)
	}
	if opts.Store.Driver != kv.DriverSqlite || opts.Store.Table != "bridge_kv" || opts.NotificationTitle != "Focus" {
		t.Fatalf("bridge options = %+v", opts)
	}
	if sc, ok := opts.Store.DriverConfig.(*kv.SqliteConfig); !ok || sc.Path != "./data/bridge.db" {
		t.Fatalf("driver config = %#v", opts.Store.DriverConfig)
	}

	relayOpts := c.RelayOptions()
	if relayOpts.Addr != "127.0.0.1:9000" || relayOpts.JWT == nil || string(relayOpts.JWT.Secret) != "s3cret" {
		t.Fatalf("relay options = %+v", relayOpts)
	}
	if c.RelayURL() != "http://127.0.0.1:9000" {
		t.Fatalf("relay url = %q", c.RelayURL())
	}
}

func TestConfigDoc_Load_UnknownField(t *testing.T) {
	path := writeConfig(t, "relay:\n  adress: typo\n")
	var c ConfigDoc
	if err := c.Load(path); err == nil || !strings.Contains(err.Error(), "adress") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestConfigDoc_Defaults(t *testing.T) {
	var c ConfigDoc
	store, err := c.StoreOptions()
	if err != nil {
		t.Fatalf("StoreOptions: %v", err)
	}
	if sc := store.DriverConfig.(*kv.SqliteConfig); sc.Path != "taskbridge.db" {
		t.Fatalf("default sqlite path = %q", sc.Path)
	}
	if c.RelayOptions().JWT != nil {
		t.Fatal("JWT guard enabled without a secret")
	}
	if c.RelayURL() != "http://127.0.0.1:8765" {
		t.Fatalf("default relay url = %q", c.RelayURL())
	}
	if co, err := c.RelayClientOptions(); err != nil || co.Token.Secret != "" {
		t.Fatalf("client options = %+v %v", co, err)
	}
}

func TestConfigDoc_StoreErrors(t *testing.T) {
	tests := []struct {
		name  string
		store StoreConfig
	}{
		{"unknown type", StoreConfig{Type: "redis"}},
		{"postgres without dsn", StoreConfig{Type: "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ConfigDoc{Store: tt.store}
			if _, err := c.StoreOptions(); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	c := ConfigDoc{Store: StoreConfig{Type: "postgresql", Postgres: postgresql.Config{Host: "db", User: "u", Password: "p", DBName: "bridge"}}}
	store, err := c.StoreOptions()
	if err != nil {
		t.Fatalf("StoreOptions: %v", err)
	}
	if store.Driver != kv.DriverPostgresql {
		t.Fatalf("driver = %q", store.Driver)
	}
}

func TestConfigDoc_HTTPErrors(t *testing.T) {
	for _, h := range []HTTPConfig{
		{Timeout: "soon"},
		{ConnectTimeout: "-1s"},
		{MinTLSVersion: "1.3", MaxTLSVersion: "1.2"},
	} {
		c := ConfigDoc{HTTP: h}
		if _, err := c.HTTPOptions(); err == nil {
			t.Errorf("%+v: expected error", h)
		}
	}
}

func TestConfigDoc_SetupLogging(t *testing.T) {
	tests := []struct {
		logging LoggingConfig
		wantErr bool
	}{
		{LoggingConfig{}, false},
		{LoggingConfig{Level: "debug", Format: "json"}, false},
		{LoggingConfig{Level: "warn", Format: "color"}, false},
		{LoggingConfig{Level: "loud"}, true},
		{LoggingConfig{Format: "xml"}, true},
	}
	for _, tt := range tests {
		c := ConfigDoc{Logging: tt.logging}
		if err := c.SetupLogging(); (err != nil) != tt.wantErr {
			t.Errorf("%+v: err = %v", tt.logging, err)
		}
	}
}

func TestConfigDoc_ApplyOverrides(t *testing.T) {
	t.Setenv("TASKBRIDGE_RELAY_ADDR", "0.0.0.0:7000")
	t.Setenv("TASKBRIDGE_STORE_SQLITE_PATH", "/tmp/env.db")
	v := NewViper()
	v.Set("relay.jwt_secret", "from-flag")
	v.Set("http.insecure", true)

	c := ConfigDoc{Relay: RelayConfig{Addr: "127.0.0.1:1", JWTSecret: "from-file"}, Notification: NotificationConfig{Title: "kept"}}
	c.ApplyOverrides(v)
	if c.Relay.Addr != "0.0.0.0:7000" || c.Store.SQLite.Path != "/tmp/env.db" {
		t.Fatalf("env overrides not applied: %+v", c)
	}
	if c.Relay.JWTSecret != "from-flag" || !c.HTTP.Insecure {
		t.Fatalf("explicit overrides not applied: %+v", c)
	}
	if c.Notification.Title != "kept" {
		t.Fatalf("unset key overwrote file value: %q", c.Notification.Title)
	}
	c.ApplyOverrides(nil)
}
