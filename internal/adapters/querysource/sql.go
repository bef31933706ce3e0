// Package querysource implements core.QuerySource over the reporting database and over a
// remote REST query endpoint.
package querysource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/opsdesk/internal/core"
	apperrors "github.com/target/opsdesk/internal/errors"
)

// SQLSourceOptions configures SQLSource.
type SQLSourceOptions struct {
	// Timeout bounds each query; zero leaves the caller's deadline in charge.
	Timeout time.Duration
	Logger  *slog.Logger
}

// SQLSource runs read queries through database/sql. The reporting database is opened with
// the pgx stdlib driver.
type SQLSource struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

var _ core.QuerySource = (*SQLSource)(nil)

// NewSQLSource wraps db. It panics when db is nil.
func NewSQLSource(db *sql.DB, opts SQLSourceOptions) *SQLSource {
	if db == nil {
		panic("SQLSource requires a database handle")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLSource{db: db, timeout: opts.Timeout, logger: logger.With("component", "sql_query_source")}
}

// Query executes q and returns every row keyed by column name. Byte slices are returned as strings.
func (s *SQLSource) Query(ctx context.Context, q core.Query) ([]core.Row, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q.Text, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []core.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(core.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	s.logger.DebugContext(ctx, "query executed", "rows", len(out), "duration", time.Since(start))
	return out, nil
}
