package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/opsdesk/config"
	"github.com/target/opsdesk/internal/adapters/querysource"
	"github.com/target/opsdesk/internal/core"
)

// QuerySourceDeps groups dependencies for building the business-record query source.
type QuerySourceDeps struct {
	Config config.QuerySourceConfig
	// DB is the primary database, reused when no reporting DSN is configured.
	DB     *sql.DB
	Logger *slog.Logger
}

// BuildQuerySource returns the configured query source wrapped in the shared rate limiter,
// plus a close function for any connection it opened.
func BuildQuerySource(deps QuerySourceDeps) (core.QuerySource, func() error, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	closer := func() error { return nil }

	var src core.QuerySource
	switch cfg.Mode {
	case config.QuerySourceHTTP:
		httpSrc, err := querysource.NewHTTPSource(querysource.HTTPSourceConfig{
			Endpoint:       cfg.Endpoint,
			RowsExpression: cfg.RowsExpression,
			Timeout:        cfg.Timeout,
			TokenURL:       cfg.TokenURL,
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			Scopes:         cfg.Scopes,
			Logger:         logger,
		})
		if err != nil {
			return nil, closer, fmt.Errorf("http query source: %w", err)
		}
		src = httpSrc
	default:
		db := deps.DB
		if cfg.DSN != "" {
			reporting, err := ConnectReportingDB(cfg.DSN, logger)
			if err != nil {
				return nil, closer, err
			}
			db = reporting
			closer = reporting.Close
		}
		if db == nil {
			return nil, closer, fmt.Errorf("sql query source: no database configured")
		}
		src = querysource.NewSQLSource(db, querysource.SQLSourceOptions{Timeout: cfg.Timeout, Logger: logger})
	}

	logger.Info("query source configured", "mode", cfg.Mode, "rate_limit", cfg.RateLimit, "burst", cfg.Burst)
	return querysource.NewLimited(src, cfg.RateLimit, cfg.Burst), closer, nil
}
