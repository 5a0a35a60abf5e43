package sqlite

// Config selects the sqlite database. DSN wins over Path when both are set.
type Config struct {
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

func (c *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"path": c.Path,
		"dsn":  c.DSN,
	}
}
