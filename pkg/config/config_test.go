package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("MEDIAKEEP_SESSION_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "http://localhost:3000", cfg.Server.FrontendURL)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "db", cfg.SSO.StateStore)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("MEDIAKEEP_SESSION_SECRET", "test-secret")
	t.Setenv("MEDIAKEEP_PORT", "9999")
	t.Setenv("MEDIAKEEP_DATABASE_DRIVER", "postgres")
	t.Setenv("MEDIAKEEP_DATABASE_URL", "postgres://localhost/mediakeep")
	t.Setenv("MEDIAKEEP_SSO_STATE_STORE", "redis")
	t.Setenv("MEDIAKEEP_SESSION_TTL", "1h")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/mediakeep", cfg.Database.URL)
	assert.Equal(t, "redis", cfg.SSO.StateStore)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
}

func TestLoadConfig_MissingSessionSecret(t *testing.T) {
	t.Setenv("MEDIAKEEP_SESSION_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEDIAKEEP_SESSION_SECRET")
}

func TestLoadConfig_BadDriver(t *testing.T) {
	t.Setenv("MEDIAKEEP_SESSION_SECRET", "test-secret")
	t.Setenv("MEDIAKEEP_DATABASE_DRIVER", "oracle")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestLoadConfig_BadStateStore(t *testing.T) {
	t.Setenv("MEDIAKEEP_SESSION_SECRET", "test-secret")
	t.Setenv("MEDIAKEEP_SSO_STATE_STORE", "memcached")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported SSO state store")
}
