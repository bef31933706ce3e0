package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
)

// CatalogQueries maps an entity type to a statement listing every entity of that type
// in a name column.
type CatalogQueries map[model.EntityType]string

// DefaultCatalogQueries lists account holders, integrations and access tokens.
func DefaultCatalogQueries() CatalogQueries {
	return CatalogQueries{
		model.EntityTypeUser:        `SELECT account_email AS name FROM accounts WHERE disabled = FALSE`,
		model.EntityTypeIntegration: `SELECT application_name AS name FROM integrations`,
		model.EntityTypeToken:       `SELECT token_name AS name FROM access_tokens WHERE revoked = FALSE`,
	}
}

// EntityCatalog enumerates entities for scheduled scans that carry no explicit list.
type EntityCatalog struct {
	source  core.QuerySource
	queries CatalogQueries
	logger  *slog.Logger
}

// EntityCatalogOptions groups dependencies for EntityCatalog.
type EntityCatalogOptions struct {
	Source  core.QuerySource // Required
	Queries CatalogQueries   // Optional; defaults to DefaultCatalogQueries
	Logger  *slog.Logger     // Optional
}

// NewEntityCatalog constructs the catalog. It panics when Source is nil.
func NewEntityCatalog(opts EntityCatalogOptions) *EntityCatalog {
	if opts.Source == nil {
		panic("EntityCatalog requires a QuerySource")
	}
	queries := opts.Queries
	if len(queries) == 0 {
		queries = DefaultCatalogQueries()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityCatalog{source: opts.Source, queries: queries, logger: logger.With("component", "entity_catalog")}
}

// List returns every known entity, de-duplicated and sorted by key.
func (c *EntityCatalog) List(ctx context.Context) ([]model.EntityKey, error) {
	seen := make(map[model.EntityKey]struct{})
	var out []model.EntityKey
	for _, typ := range model.EntityTypes() {
		query, ok := c.queries[typ]
		if !ok || query == "" {
			continue
		}
		rows, err := c.source.Query(ctx, core.Query{Text: query})
		if err != nil {
			return nil, fmt.Errorf("list %s entities: %w", typ, err)
		}
		for _, row := range rows {
			name := rowString(row, "name")
			if name == "" {
				continue
			}
			key := model.EntityKey{Type: typ, Name: name}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	c.logger.DebugContext(ctx, "entity catalog listed", "count", len(out))
	return out, nil
}
