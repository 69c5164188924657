package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("EXAMDESK_TEST_KEY", "secret")
	dir := t.TempDir()
	path := writeConfig(t, `
api:
  base_url: https://school.example.com
  api_key: ${EXAMDESK_TEST_KEY}
journal:
  enabled: true
  path: `+filepath.Join(dir, "nested", "journal.db")+`
print:
  locale: ar
  direction: rtl
  am_label: ص
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.APITimeout())
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 120, cfg.DefaultDuration())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, "data/backups", cfg.Journal.Backup.Path)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	assert.DirExists(t, filepath.Join(dir, "nested"))

	opts := cfg.PrintOptions()
	assert.Equal(t, "rtl", opts.Direction)
	assert.Equal(t, "ص", opts.AMLabel)
	assert.Equal(t, "ar", opts.Locale)
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  address: 127.0.0.1:9000
api:
  base_url: http://localhost:3000
  timeout_seconds: 3
  cache_ttl_seconds: 30
journal:
  backup:
    interval_hours: 6
draft:
  default_duration_minutes: 90
log:
  level: nonsense
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, 3*time.Second, cfg.APITimeout())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL())
	assert.Equal(t, 90, cfg.DefaultDuration())
	assert.Equal(t, 6*time.Hour, cfg.BackupInterval())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	assert.False(t, cfg.Journal.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "api: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server:\n  address: \":80\"\n"))
	assert.ErrorContains(t, err, "api.base_url is required")
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("EXAMDESK_CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, PathFromEnv())
	t.Setenv("EXAMDESK_CONFIG_PATH", "/etc/examdesk.yaml")
	assert.Equal(t, "/etc/examdesk.yaml", PathFromEnv())
}
