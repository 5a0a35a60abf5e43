package config

import (
	"strings"

	"github.com/spf13/viper"
)

// overrideKeys maps viper keys (flags and TASKBRIDGE_* variables) onto
// config fields.
func (c *ConfigDoc) overrideKeys() map[string]*string {
	return map[string]*string{
		"relay.addr":           &c.Relay.Addr,
		"relay.url":            &c.Relay.URL,
		"relay.jwt_secret":     &c.Relay.JWTSecret,
		"relay.jwt_issuer":     &c.Relay.JWTIssuer,
		"store.type":           &c.Store.Type,
		"store.table":          &c.Store.Table,
		"store.sqlite.path":    &c.Store.SQLite.Path,
		"store.postgres.dsn":   &c.Store.Postgres.DSN,
		"http.timeout":         &c.HTTP.Timeout,
		"http.min_tls_version": &c.HTTP.MinTLSVersion,
		"logging.level":        &c.Logging.Level,
		"logging.format":       &c.Logging.Format,
		"notification.title":   &c.Notification.Title,
		"notification.message": &c.Notification.Message,
	}
}

// ApplyOverrides copies every non-empty value viper knows about over the
// file. Bools are only taken when explicitly set.
func (c *ConfigDoc) ApplyOverrides(v *viper.Viper) {
	if v == nil {
		return
	}
	for key, dst := range c.overrideKeys() {
		if !v.IsSet(key) {
			continue
		}
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			*dst = s
		}
	}
	if v.IsSet("http.insecure") {
		c.HTTP.Insecure = v.GetBool("http.insecure")
	}
}

// NewViper returns a viper instance reading TASKBRIDGE_* variables, with
// nested keys separated by underscores (TASKBRIDGE_RELAY_ADDR).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TASKBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
