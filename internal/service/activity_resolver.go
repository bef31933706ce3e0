package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
)

// ActivityQueries maps an entity type to its lookup statement. Each statement takes the
// entity name as its only argument and yields rows with a last_activity column.
type ActivityQueries map[model.EntityType]string

// DefaultActivityQueries filters login history by account-holder email for users and by
// application name for integrations, and token usage by token name for tokens.
func DefaultActivityQueries() ActivityQueries {
	return ActivityQueries{
		model.EntityTypeUser: `SELECT MAX(login_time) AS last_activity FROM login_history WHERE account_email = $1`,
		model.EntityTypeIntegration: `SELECT MAX(login_time) AS last_activity FROM login_history ` +
			`WHERE application_name = $1`,
		model.EntityTypeToken: `SELECT MAX(used_at) AS last_activity FROM token_usage WHERE token_name = $1`,
	}
}

// ActivityResolverOptions groups dependencies for ActivityResolver.
type ActivityResolverOptions struct {
	Source  core.QuerySource // Required
	Queries ActivityQueries  // Optional; defaults to DefaultActivityQueries
	Logger  *slog.Logger     // Optional
}

// ActivityResolver looks up the most recent activity timestamp for one entity.
type ActivityResolver struct {
	source  core.QuerySource
	queries ActivityQueries
	logger  *slog.Logger
}

// NewActivityResolver constructs the resolver. It panics when Source is nil.
func NewActivityResolver(opts ActivityResolverOptions) *ActivityResolver {
	if opts.Source == nil {
		panic("ActivityResolver requires a QuerySource")
	}
	queries := opts.Queries
	if len(queries) == 0 {
		queries = DefaultActivityQueries()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityResolver{source: opts.Source, queries: queries, logger: logger.With("component", "activity_resolver")}
}

// Resolve returns the latest activity for item, or "" when the entity was never seen.
// Unknown entity types fail with model.ErrUnknownEntityType.
func (r *ActivityResolver) Resolve(ctx context.Context, item model.EntityWorkItem) (string, error) {
	query, ok := r.queries[item.Type]
	if !item.Type.Valid() || !ok || query == "" {
		return "", fmt.Errorf("%q: %w", item.Type, model.ErrUnknownEntityType)
	}

	rows, err := r.source.Query(ctx, core.Query{Text: query, Args: []any{item.Name}})
	if err != nil {
		return "", fmt.Errorf("query activity for %s: %w", item.String(), err)
	}

	latest := ""
	for _, row := range rows {
		if v := rowString(row, "last_activity"); laterActivity(v, latest) {
			latest = v
		}
	}
	r.logger.DebugContext(ctx, "entity resolved",
		"entity_type", item.Type,
		"entity_name", item.Name,
		"last_activity", latest,
	)
	return latest, nil
}

// laterActivity reports whether a should replace b. Parsed timestamps compare by instant;
// anything unparseable falls back to string order, and "" never wins.
func laterActivity(a, b string) bool {
	if a == "" {
		return false
	}
	if b == "" {
		return true
	}
	ta, okA := parseTimestamp(a)
	tb, okB := parseTimestamp(b)
	if okA && okB {
		return ta.After(tb)
	}
	return a > b
}
