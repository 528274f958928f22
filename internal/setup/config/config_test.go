package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/robalyx/cotd/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	commonTOML = `
version = 1
env_name = "dev"

[debug]
log_level = "info"

[postgresql]
host = "localhost"
port = 5432
`
	botTOML = `
version = 1

[discord]
token = "file-token"
verify_signatures = false

[api]
port = 8080
admin_key = "file-key"
`
	workerTOML = `
version = 1
styles_file = "dat/styles.json"

[upstream]
rotation_url = "https://trackmania.io/api/totd/0"
tagging_url = "https://trackmania.exchange/api/maps/get_map_info/uid/"

[schedule]
refresh_cron = "0 19 * * *"
timezone = "CET"
`
)

func writeConfigs(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".toml"), []byte(content), 0o600))
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestLoadConfigFromPaths(t *testing.T) {
	t.Parallel()

	t.Run("loads all files", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeConfigs(t, dir, map[string]string{"common": commonTOML, "bot": botTOML, "worker": workerTOML})

		cfg, used, err := config.LoadConfigFromPaths([]string{dir}, noEnv)
		require.NoError(t, err)
		assert.Equal(t, dir, used)
		assert.Equal(t, "dev", cfg.Common.EnvName)
		assert.Equal(t, "file-token", cfg.Bot.Discord.Token)
		assert.Equal(t, "0 19 * * *", cfg.Worker.Schedule.RefreshCron)
		assert.Equal(t, "CET", cfg.Worker.Schedule.Timezone)
	})

	t.Run("falls through search paths", func(t *testing.T) {
		t.Parallel()

		first, second := t.TempDir(), t.TempDir()
		writeConfigs(t, first, map[string]string{"common": commonTOML})
		writeConfigs(t, second, map[string]string{"bot": botTOML, "worker": workerTOML})

		cfg, used, err := config.LoadConfigFromPaths([]string{first, second}, noEnv)
		require.NoError(t, err)
		assert.Equal(t, first, used)
		assert.Equal(t, 8080, cfg.Bot.API.Port)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeConfigs(t, dir, map[string]string{"common": commonTOML, "bot": botTOML})

		_, _, err := config.LoadConfigFromPaths([]string{dir}, noEnv)
		require.ErrorIs(t, err, config.ErrConfigFileNotFound)
	})

	t.Run("missing version", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeConfigs(t, dir, map[string]string{
			"common": "env_name = \"dev\"\n[debug]\nlog_level = \"info\"\n",
			"bot":    botTOML,
			"worker": workerTOML,
		})

		_, _, err := config.LoadConfigFromPaths([]string{dir}, noEnv)
		require.ErrorIs(t, err, config.ErrConfigVersionMissing)
	})

	t.Run("version mismatch", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeConfigs(t, dir, map[string]string{
			"common": commonTOML,
			"bot":    "version = 99\n",
			"worker": workerTOML,
		})

		_, _, err := config.LoadConfigFromPaths([]string{dir}, noEnv)
		require.ErrorIs(t, err, config.ErrConfigVersionMismatch)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeConfigs(t, dir, map[string]string{
			"common": "version = 1\nenv_name = \"dev\"\n[debug]\nlog_level = \"loud\"\n",
			"bot":    botTOML,
			"worker": workerTOML,
		})

		_, _, err := config.LoadConfigFromPaths([]string{dir}, noEnv)
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigs(t, dir, map[string]string{"common": commonTOML, "bot": botTOML, "worker": workerTOML})

	env := map[string]string{
		config.EnvAdminKey:             "env-key",
		config.EnvDatabaseURL:          "postgres://user:pass@db:5432/cotd",
		config.EnvDiscordAppID:         "1234567890",
		config.EnvDiscordBotToken:      "env-token",
		config.EnvName:                 "prod",
		config.EnvNotificationsDefault: " TRUE ",
		config.EnvVerifySignatures:     "yes",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, _, err := config.LoadConfigFromPaths([]string{dir}, lookup)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Bot.API.AdminKey)
	assert.Equal(t, "postgres://user:pass@db:5432/cotd", cfg.Common.PostgreSQL.DSN)
	assert.Equal(t, uint64(1234567890), cfg.Bot.Discord.AppID)
	assert.Equal(t, "env-token", cfg.Bot.Discord.Token)
	assert.Equal(t, "prod", cfg.Common.EnvName)
	assert.True(t, cfg.Worker.Notifications.EnabledDefault)
	assert.False(t, cfg.Bot.Discord.VerifySignatures, "only \"true\" enables verification")
}

func TestEnvOverridesRejectsBadAppID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigs(t, dir, map[string]string{"common": commonTOML, "bot": botTOML, "worker": workerTOML})

	lookup := func(key string) (string, bool) {
		if key == config.EnvDiscordAppID {
			return "not-a-number", true
		}
		return "", false
	}

	_, _, err := config.LoadConfigFromPaths([]string{dir}, lookup)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestIsProductionEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want bool
	}{
		{env: "prod", want: true},
		{env: "Production", want: true},
		{env: "eu-prod-2", want: true},
		{env: "dev", want: false},
		{env: "staging", want: false},
		{env: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, config.IsProductionEnv(tt.env))
		})
	}
}
