package postgresql

import (
	"fmt"
	"net/url"

	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/util"
)

type Config struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"dsn": p.BuildDSN(),
	}
}

// BuildDSN prefers an explicit DSN; otherwise it is assembled from the
// components when a host is provided.
func (p *Config) BuildDSN() string {
	dsn, hasDSN := util.TrimEmptyCheck(p.DSN)
	host, hasHost := util.TrimEmptyCheck(p.Host)
	if hasDSN || !hasHost {
		return dsn
	}
	port := p.Port
	if port == 0 {
		port = constants.DefaultPostgresPort
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + util.TrimWithDefault(p.DBName, ""),
		RawQuery: "sslmode=" + url.QueryEscape(util.TrimWithDefault(p.SSLMode, constants.DefaultPostgresSSLMode)),
	}
	if user, ok := util.TrimEmptyCheck(p.User); ok {
		if pw, ok := util.TrimEmptyCheck(p.Password); ok {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}
