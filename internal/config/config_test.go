package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: 0.0.0.0:9000
timezone: UTC
week_start: Sunday
horizon_days: 14
widgets: [FINANCE, SLEEP]
store:
  driver: sqlite
  path: /tmp/docs.db
basic_auth:
  username: me
  password: secret
`), 0o600))

	t.Setenv("PLANMARK_HORIZON_DAYS", "3")
	t.Setenv("PLANMARK_STORE_PATTERN", "journal/*")
	t.Setenv("PLANMARK_REMINDER_CRON", "0 * * * *")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, 3, cfg.HorizonDays)
	assert.Equal(t, "0 * * * *", cfg.ReminderCron)
	assert.Equal(t, []string{"FINANCE", "SLEEP"}, cfg.Widgets)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/docs.db", cfg.Store.Path)
	assert.Equal(t, "journal/*", cfg.Store.Pattern)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "me", cfg.BasicAuth.Username)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: Mars/Olympus\nreminder_cron: often\nstore:\n  driver: s3\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
	assert.Contains(t, err.Error(), "reminder_cron")
	assert.Contains(t, err.Error(), "store.driver")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Listen = ":7070"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestNormalizeDropsEmptyBasicAuth(t *testing.T) {
	cfg := &Config{BasicAuth: &BasicAuthConfig{}}
	cfg.Normalize()
	assert.Nil(t, cfg.BasicAuth)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, DriverDir, cfg.Store.Driver)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "store.dir", envKey("PLANMARK_STORE_DIR"))
	assert.Equal(t, "basic_auth.password", envKey("PLANMARK_BASIC_AUTH_PASSWORD"))
	assert.Equal(t, "horizon_days", envKey("PLANMARK_HORIZON_DAYS"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "planmark"), ExpandHome("~/planmark"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
}
