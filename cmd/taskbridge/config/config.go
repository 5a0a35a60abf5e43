package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/taskbridge"
	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/httpc"
	"github.com/loykin/taskbridge/internal/kv"
	"github.com/loykin/taskbridge/internal/kv/postgresql"
	"github.com/loykin/taskbridge/internal/relay"
	"github.com/loykin/taskbridge/internal/util"
	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Insecure       bool   `mapstructure:"insecure" yaml:"insecure"`
	MinTLSVersion  string `mapstructure:"min_tls_version" yaml:"min_tls_version"`
	MaxTLSVersion  string `mapstructure:"max_tls_version" yaml:"max_tls_version"`
	ConnectTimeout string `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	// Timeout caps a whole exchange, e.g. "30s". Empty means no cap.
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

type SQLiteStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type StoreConfig struct {
	Type     string            `mapstructure:"type" yaml:"type"`
	Table    string            `mapstructure:"table" yaml:"table"`
	SQLite   SQLiteStoreConfig `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres postgresql.Config `mapstructure:"postgres" yaml:"postgres"`
}

type RelayConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// URL is where client commands reach a running relay. Defaults to http://<addr>.
	URL       string `mapstructure:"url" yaml:"url"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
}

type NotificationConfig struct {
	Title   string `mapstructure:"title" yaml:"title"`
	Message string `mapstructure:"message" yaml:"message"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
	Color         *bool  `mapstructure:"color" yaml:"color"`                   // enable/disable colorized output
}

type ConfigDoc struct {
	HTTP         HTTPConfig         `mapstructure:"http" yaml:"http"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Relay        RelayConfig        `mapstructure:"relay" yaml:"relay"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	// Ensure path points to a regular file to avoid opening directories/special files
	if info, statErr := os.Stat(clean); statErr != nil || !info.Mode().IsRegular() {
		if statErr != nil {
			return statErr
		}
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the user; cleaned and validated above
	f, err := os.Open(clean)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse %s: %w", clean, err)
	}
	util.TrimStructFields(c)
	return nil
}

func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, v)
	}
	return d, nil
}

// HTTPOptions builds the exchange transport settings.
func (c *ConfigDoc) HTTPOptions() (*taskbridge.HTTPConfig, error) {
	connect, err := parseDuration("http.connect_timeout", c.HTTP.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDuration("http.timeout", c.HTTP.Timeout)
	if err != nil {
		return nil, err
	}
	minV := httpc.TLSVersion(util.TrimAndLower(c.HTTP.MinTLSVersion))
	maxV := httpc.TLSVersion(util.TrimAndLower(c.HTTP.MaxTLSVersion))
	if minV != 0 && maxV != 0 && minV > maxV {
		return nil, fmt.Errorf("http.min_tls_version %q is above http.max_tls_version %q", c.HTTP.MinTLSVersion, c.HTTP.MaxTLSVersion)
	}
	cfg := &tls.Config{MinVersion: minV, MaxVersion: maxV}
	if c.HTTP.Insecure {
		cfg.InsecureSkipVerify = true // #nosec G402 -- explicitly requested in config
	}
	return &taskbridge.HTTPConfig{TlsConfig: cfg, ConnectTimeout: connect, Timeout: timeout}, nil
}

// StoreOptions builds the key-value store selection. The sqlite file
// defaults to taskbridge.db in the working directory.
func (c *ConfigDoc) StoreOptions() (taskbridge.StoreConfig, error) {
	out := taskbridge.StoreConfig{Driver: c.Store.Type, Table: c.Store.Table}
	switch util.TrimAndLower(c.Store.Type) {
	case "", "sqlite", "sqlite3":
		out.Driver = kv.DriverSqlite
		out.DriverConfig = &kv.SqliteConfig{Path: util.TrimWithDefault(c.Store.SQLite.Path, constants.DefaultDBFileName)}
	case "postgres", "postgresql", "pgx":
		out.Driver = kv.DriverPostgresql
		pg := c.Store.Postgres
		if pg.BuildDSN() == "" {
			return out, fmt.Errorf("store.postgres requires dsn or host")
		}
		out.DriverConfig = &pg
	default:
		return out, fmt.Errorf("unsupported store.type %q (valid: sqlite, postgres)", c.Store.Type)
	}
	return out, nil
}

// BridgeOptions assembles everything New needs except the surface.
func (c *ConfigDoc) BridgeOptions() (taskbridge.Options, error) {
	httpOpts, err := c.HTTPOptions()
	if err != nil {
		return taskbridge.Options{}, err
	}
	store, err := c.StoreOptions()
	if err != nil {
		return taskbridge.Options{}, err
	}
	return taskbridge.Options{
		HTTP:                httpOpts,
		Store:               store,
		NotificationTitle:   c.Notification.Title,
		NotificationMessage: c.Notification.Message,
	}, nil
}

// RelayOptions returns the listen address and, when a secret is set, the JWT guard.
func (c *ConfigDoc) RelayOptions() taskbridge.RelayOptions {
	opts := taskbridge.RelayOptions{Addr: util.TrimWithDefault(c.Relay.Addr, constants.DefaultRelayAddr)}
	if c.Relay.JWTSecret != "" {
		opts.JWT = &relay.VerifyConfig{
			Secret:        []byte(c.Relay.JWTSecret),
			AllowedIssuer: c.Relay.JWTIssuer,
			ClockSkew:     2 * time.Second,
		}
	}
	return opts
}

// RelayURL is the base URL client commands dial.
func (c *ConfigDoc) RelayURL() string {
	if c.Relay.URL != "" {
		return c.Relay.URL
	}
	return "http://" + util.TrimWithDefault(c.Relay.Addr, constants.DefaultRelayAddr)
}

// RelayClientOptions configures a client for a running relay.
func (c *ConfigDoc) RelayClientOptions() (relay.ClientOptions, error) {
	httpOpts, err := c.HTTPOptions()
	if err != nil {
		return relay.ClientOptions{}, err
	}
	return relay.ClientOptions{
		BaseURL: c.RelayURL(),
		HTTP:    httpOpts,
		Token:   relay.TokenConfig{Secret: c.Relay.JWTSecret, Issuer: c.Relay.JWTIssuer, Subject: "taskbridge-cli"},
	}, nil
}

func (c *ConfigDoc) parseLogLevel() (taskbridge.LogLevel, error) {
	level := util.TrimAndLower(c.Logging.Level)
	switch level {
	case "error":
		return taskbridge.LogLevelError, nil
	case "warn", "warning":
		return taskbridge.LogLevelWarn, nil
	case "info", "":
		return taskbridge.LogLevelInfo, nil
	case "debug":
		return taskbridge.LogLevelDebug, nil
	default:
		return taskbridge.LogLevelInfo, fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", c.Logging.Level)
	}
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() error {
	level, err := c.parseLogLevel()
	if err != nil {
		return err
	}

	var logger *taskbridge.Logger
	format := util.TrimAndLower(c.Logging.Format)

	useColor := false
	if c.Logging.Color != nil {
		useColor = *c.Logging.Color
	} else if format == "color" || format == "colour" {
		useColor = true
	}

	switch format {
	case "json":
		logger = taskbridge.NewJSONLogger(level)
	case "color", "colour":
		logger = taskbridge.NewColorLogger(level)
	case "text", "":
		if useColor {
			logger = taskbridge.NewColorLogger(level)
		} else {
			logger = taskbridge.NewLogger(level)
		}
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json, color)", c.Logging.Format)
	}

	maskingEnabled := true
	if c.Logging.MaskSensitive != nil {
		maskingEnabled = *c.Logging.MaskSensitive
	}
	taskbridge.EnableMasking(maskingEnabled)
	taskbridge.SetDefaultLogger(logger)

	logger.Debug("logging configured",
		"level", util.TrimWithDefault(util.TrimAndLower(c.Logging.Level), "info"),
		"format", format,
		"color", useColor,
		"mask_sensitive", maskingEnabled)
	return nil
}
