package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: s3cret\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.Messaging.EditWindow)
	assert.Equal(t, 30, cfg.Messaging.PageSize)
	assert.Equal(t, 100, cfg.Messaging.MaxPageSize)
	assert.Equal(t, 4*time.Second, cfg.Messaging.PublishTimeout)
	assert.False(t, cfg.Messaging.MonotonicReadCursor)
	assert.Equal(t, 5*time.Second, cfg.Presence.TypingTTL)
	assert.Equal(t, "parley:", cfg.Redis.KeyPrefix)
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
messaging:
  edit_window: 10m
  monotonic_read_cursor: true
presence:
  typing_ttl: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Messaging.EditWindow)
	assert.True(t, cfg.Messaging.MonotonicReadCursor)
	assert.Equal(t, 3*time.Second, cfg.Presence.TypingTTL)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: from-file\n")
	t.Setenv("PARLEY_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "config/config.yaml", ResolvePath("config/config.yaml"))
	t.Setenv(EnvConfigPath, "/etc/parley.yaml")
	assert.Equal(t, "/etc/parley.yaml", ResolvePath("config/config.yaml"))
}
