package kv

import (
	"fmt"
	"regexp"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/kv/postgresql"
	"github.com/loykin/taskbridge/internal/kv/sqlite"
	"github.com/loykin/taskbridge/internal/util"
)

const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgresql"
)

type SqliteConfig = sqlite.Config
type PostgresConfig = postgresql.Config

// DriverConfig is implemented by each driver's configuration
type DriverConfig interface {
	ToMap() map[string]interface{}
}

// Config selects and configures the storage driver
type Config struct {
	Driver       string `mapstructure:"driver"`
	Table        string `mapstructure:"table"`
	DriverConfig DriverConfig
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// normalize applies defaults and validates the driver and table name
func (c Config) normalize() (Config, error) {
	switch util.TrimAndLower(c.Driver) {
	case "", "sqlite", "sqlite3":
		c.Driver = DriverSqlite
	case "postgres", "postgresql", "pgx":
		c.Driver = DriverPostgresql
	default:
		return c, fmt.Errorf("unsupported store driver: %q", c.Driver)
	}
	c.Table = util.TrimWithDefault(c.Table, constants.DefaultKVTable)
	if !tableNameRe.MatchString(c.Table) {
		return c, fmt.Errorf("invalid table name: %q", c.Table)
	}
	return c, nil
}

// DecodeDriverConfig decodes a raw config map (from yaml or viper) into the
// driver-specific configuration type.
func DecodeDriverConfig(driver string, raw map[string]interface{}) (DriverConfig, error) {
	var target DriverConfig
	switch util.TrimAndLower(driver) {
	case "", "sqlite", "sqlite3":
		target = &SqliteConfig{}
	case "postgres", "postgresql", "pgx":
		target = &PostgresConfig{}
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", driver)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode %s store config: %w", driver, err)
	}
	util.TrimStructFields(target)
	return target, nil
}
