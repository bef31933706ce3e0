package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "")
	t.Setenv("TEST_DB_PORT", "")
	t.Setenv("TEST_DB_USER", "")
	t.Setenv("TEST_DB_PASSWORD", "")
	t.Setenv("TEST_DB_NAME", "")

	cfg := DefaultTestDBConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "55432", cfg.Port)
	assert.Equal(t, "opsdesk", cfg.User)
	assert.Equal(t, "opsdesk", cfg.DBName)
}

func TestDefaultTestDBConfigOverrides(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db")
	t.Setenv("TEST_DB_PORT", "5432")
	t.Setenv("TEST_DB_USER", "")
	t.Setenv("TEST_DB_PASSWORD", "")
	t.Setenv("TEST_DB_NAME", "")
	t.Setenv("DB_SSL_MODE", "require")

	cfg := DefaultTestDBConfig()
	assert.Equal(t, "postgres://opsdesk:opsdesk@db:5432/opsdesk?sslmode=require", cfg.DSN())
}

func TestGenerateSchemaName(t *testing.T) {
	a, b := generateSchemaName(), generateSchemaName()
	assert.Regexp(t, `^t_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}
