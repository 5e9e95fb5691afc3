package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, ".veristat/state.db", cfg.Store.Path)
	assert.Equal(t, "plugins", cfg.Plugins.Dir)
	assert.False(t, cfg.Plugins.Watch)
	assert.Equal(t, "http://localhost:8675", cfg.Worker.BaseURL)
	assert.Equal(t, 60, cfg.Render.TimeoutSeconds)
	assert.Equal(t, 2, cfg.Render.MaxSessions)
	assert.Equal(t, "reports", cfg.Render.ReportsDir)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 9000
store:
  driver: sqlite
  path: /tmp/test.db
plugins:
  watch: true
render:
  max_sessions: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Store.Path)
	assert.True(t, cfg.Plugins.Watch)
	assert.Equal(t, 4, cfg.Render.MaxSessions)
	// Untouched keys keep their defaults.
	assert.Equal(t, "http://localhost:8675", cfg.Worker.BaseURL)
}

func TestLoadAlternateExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileNameAlt),
		[]byte("server:\n  port: 7777\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName),
		[]byte("server:\n  port: 9000\n"), 0o644))

	t.Setenv("VERISTAT_SERVER_PORT", "9999")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName),
		[]byte("server: [broken\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load")
}

func TestValidateStoreDriver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName),
		[]byte("store:\n  driver: oracle\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store driver "oracle"`)
}

func TestValidatePostgresRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName),
		[]byte("store:\n  driver: postgres\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn is required")
}

func TestValidateRenderBounds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName),
		[]byte("render:\n  max_sessions: 0\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render.max_sessions must be positive")
}
