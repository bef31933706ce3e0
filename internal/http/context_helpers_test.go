package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/target/opsdesk/internal/domain/model"
)

func TestPrincipalFromContext(t *testing.T) {
	p, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, model.Principal{}, p)

	want := model.Principal{Subject: "ops1", Email: "ops1@example.com", Groups: []string{"opsdesk-admins"}}
	ctx := SetPrincipalInContext(context.Background(), want)
	got, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, want, got)
	assert.True(t, got.InGroup("opsdesk-admins"))
}
