package database

import (
	"fmt"
	"net/url"
	"strings"
)

// Config holds Postgres connection settings.
type Config struct {
	// URL, when set, takes precedence over the discrete fields.
	URL            string `yaml:"url" envconfig:"DATABASE_URL"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// DSN renders the connection string in URL form, usable by both lib/pq and golang-migrate.
func (c Config) DSN() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	host := c.Host
	if c.Port != "" {
		host += ":" + c.Port
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     host,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String()
}

// Validate checks that enough is set to build a DSN.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) != "" {
		return nil
	}
	if c.Host == "" || c.Name == "" {
		return fmt.Errorf("database host and name are required (or set database.url)")
	}
	return nil
}

// Target returns host and db name for log lines, never credentials.
func (c Config) Target() (host, name string) {
	if strings.TrimSpace(c.URL) == "" {
		return c.Host, c.Name
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", ""
	}
	return u.Host, strings.TrimPrefix(u.Path, "/")
}
