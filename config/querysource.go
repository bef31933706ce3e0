package config

import (
	"fmt"
	"strings"
	"time"
)

// QuerySourceMode selects how business records are queried.
type QuerySourceMode string

const (
	// QuerySourceSQL queries a Postgres reporting database directly.
	QuerySourceSQL QuerySourceMode = "sql"
	// QuerySourceHTTP posts queries to a REST query endpoint.
	QuerySourceHTTP QuerySourceMode = "http"
)

// UnmarshalText implements encoding.TextUnmarshaler for QuerySourceMode.
func (m *QuerySourceMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "sql", "http":
		*m = QuerySourceMode(v)
		return nil
	default:
		return fmt.Errorf("invalid QuerySourceMode: %q (valid options: sql, http)", v)
	}
}

// QuerySourceConfig configures the business-record query source.
type QuerySourceConfig struct {
	Mode QuerySourceMode `env:"MODE" envDefault:"sql"`

	// DSN points at the reporting database; empty reuses the primary database.
	DSN string `env:"DSN"`

	Endpoint       string   `env:"ENDPOINT"`
	RowsExpression string   `env:"ROWS_EXPRESSION" envDefault:"rows"`
	TokenURL       string   `env:"TOKEN_URL"`
	ClientID       string   `env:"CLIENT_ID"`
	ClientSecret   string   `env:"CLIENT_SECRET"`
	Scopes         []string `env:"SCOPES" envSeparator:","`

	// Timeout bounds one query.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"20s"`

	// RateLimit is queries per second across all workers; zero disables throttling.
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"10"`
	Burst     int     `env:"BURST"      envDefault:"5"`
}

// Sanitize normalises query source values.
func (c *QuerySourceConfig) Sanitize() {
	if c.Mode == "" {
		c.Mode = QuerySourceSQL
	}
	c.DSN = strings.TrimSpace(c.DSN)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	if c.RowsExpression = strings.TrimSpace(c.RowsExpression); c.RowsExpression == "" {
		c.RowsExpression = "rows"
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
}
