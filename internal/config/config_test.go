// ABOUTME: Tests for configuration loading and parsing.
// ABOUTME: Covers YAML and TOML, env expansion, overrides, and durations.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  path: "./courier.db"

logging:
  level: "debug"
  format: "json"

dispatcher:
  allowed_users:
    - "100"
    - "200"

outbox:
  max_attempts: 7
  sweep_interval: "10s"

interact:
  timeout: "5m"

telegram:
  enabled: true
  token: "tg-token"
  poll_timeout: 30

discord:
  enabled: true
  token: "dc-token"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./courier.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"100", "200"}, cfg.Dispatcher.AllowedUsers)
	assert.Equal(t, 7, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Outbox.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.Interact.Timeout)
	assert.Equal(t, "tg-token", cfg.Telegram.Token)
	assert.Equal(t, 30, cfg.Telegram.PollTimeout)
	assert.Equal(t, defaultTelegramAPIBase, cfg.Telegram.APIBase)
	assert.Equal(t, defaultDiscordIntents, cfg.Discord.Intents)
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[database]
path = "courier.db"

[telegram]
enabled = true
token = "tg-token"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "courier.db", cfg.Database.Path)
	assert.True(t, cfg.Telegram.Enabled)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("COURIER_TEST_TOKEN", "secret-from-env")

	path := writeConfig(t, "config.yaml", `
database:
  path: "courier.db"
telegram:
  enabled: true
  token: "${COURIER_TEST_TOKEN}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.Telegram.Token)
}

func TestLoad_EnvOverrideBeatsFile(t *testing.T) {
	t.Setenv("COURIER_TELEGRAM_TOKEN", "override")

	path := writeConfig(t, "config.yaml", `
database:
  path: "courier.db"
telegram:
  enabled: true
  token: "from-file"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override", cfg.Telegram.Token)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  path: "courier.db"
outbox:
  sweep_interval: "soon"
telegram:
  enabled: true
  token: "t"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "sweep_interval")
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing database path",
			"telegram:\n  enabled: true\n  token: t\n",
			"database.path is required",
		},
		{
			"no platform enabled",
			"database:\n  path: db\n",
			"at least one platform",
		},
		{
			"enabled platform without token",
			"database:\n  path: db\ndiscord:\n  enabled: true\n",
			"discord.token is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tc.content))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load(writeConfig(t, "config.ini", "x=y"))
	assert.ErrorContains(t, err, "unsupported config extension")
}
