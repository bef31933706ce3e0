package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
)

func TestEntityCatalog_List(t *testing.T) {
	rows := map[string][]core.Row{
		"users":  {{"name": "b@x.com"}, {"name": "a@x.com"}, {"name": ""}, {"name": "a@x.com"}},
		"apps":   {{"name": "crm"}},
		"tokens": {{"name": []byte("T1")}},
	}
	source := core.QuerySourceFunc(func(_ context.Context, q core.Query) ([]core.Row, error) {
		return rows[q.Text], nil
	})
	c := NewEntityCatalog(EntityCatalogOptions{Source: source, Queries: CatalogQueries{
		model.EntityTypeToken:       "tokens",
		model.EntityTypeUser:        "users",
		model.EntityTypeIntegration: "apps",
	}})

	keys, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.EntityKey{
		{Type: model.EntityTypeUser, Name: "a@x.com"},
		{Type: model.EntityTypeUser, Name: "b@x.com"},
		{Type: model.EntityTypeIntegration, Name: "crm"},
		{Type: model.EntityTypeToken, Name: "T1"},
	}, keys)
}

func TestEntityCatalog_ListError(t *testing.T) {
	source := core.QuerySourceFunc(func(context.Context, core.Query) ([]core.Row, error) {
		return nil, errors.New("quota exceeded")
	})
	c := NewEntityCatalog(EntityCatalogOptions{Source: source})

	_, err := c.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list user entities")
}
