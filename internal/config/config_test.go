package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
[paths]
database = "/var/lib/depotsync/state.db"
install_root = "/srv/library"
manifest = "/etc/depotsync/manifest.toml"

[sync]
feed_url = "wss://feed.example.com/changes"
poll_interval = "2m"
parallel_apps = 8

[logging]
level = "debug"
format = "json"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/var/lib/depotsync/state.db", cfg.Paths.Database)
		assert.Equal(t, "/srv/library", cfg.Paths.InstallRoot)
		assert.Equal(t, "/etc/depotsync/manifest.toml", cfg.Paths.Manifest)
		assert.Equal(t, "wss://feed.example.com/changes", cfg.Sync.FeedURL)
		assert.Equal(t, 2*time.Minute, cfg.PollDuration())
		assert.Equal(t, 8, cfg.Sync.ParallelApps)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("unset fields keep defaults", func(t *testing.T) {
		path := writeConfig(t, `
[sync]
feed_url = "ws://localhost:9090/changes"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, defaultParallelApps, cfg.Sync.ParallelApps)
		assert.Equal(t, defaultPollInterval, cfg.Sync.PollInterval)
		assert.Equal(t, defaultLogLevel, cfg.Logging.Level)
	})

	t.Run("unknown key is fatal with suggestion", func(t *testing.T) {
		path := writeConfig(t, `
[sync]
pol_interval = "2m"
`)

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.poll_interval")
	})

	t.Run("unknown section is fatal", func(t *testing.T) {
		path := writeConfig(t, `
[network]
timeout = "10s"
`)

		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("invalid values are fatal", func(t *testing.T) {
		path := writeConfig(t, `
[sync]
poll_interval = "often"
parallel_apps = 0

[logging]
level = "loud"
`)

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "poll_interval")
		assert.Contains(t, err.Error(), "parallel_apps")
		assert.Contains(t, err.Error(), "logging.level")
	})
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
		require.NoError(t, err)
		assert.Equal(t, defaultParallelApps, cfg.Sync.ParallelApps)
	})

	t.Run("existing file is loaded", func(t *testing.T) {
		path := writeConfig(t, `
[sync]
parallel_apps = 2
`)

		cfg, err := LoadOrDefault(path)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Sync.ParallelApps)
	})
}

func TestResolve(t *testing.T) {
	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfig(t, `
[paths]
database = "/from/file.db"
`)

		cfg, err := Resolve(EnvOverrides{
			ConfigPath: path,
			Database:   "/from/env.db",
			FeedURL:    "ws://env.example.com/changes",
		}, CLIOverrides{})
		require.NoError(t, err)

		assert.Equal(t, "/from/env.db", cfg.Paths.Database)
		assert.Equal(t, "ws://env.example.com/changes", cfg.Sync.FeedURL)
	})

	t.Run("cli flags win over env", func(t *testing.T) {
		path := writeConfig(t, `
[paths]
database = "/from/file.db"
install_root = "/from/file"
`)

		db := "/from/cli.db"
		root := "/from/cli"

		cfg, err := Resolve(EnvOverrides{
			ConfigPath:  path,
			Database:    "/from/env.db",
			InstallRoot: "/from/env",
		}, CLIOverrides{Database: &db, InstallRoot: &root})
		require.NoError(t, err)

		assert.Equal(t, "/from/cli.db", cfg.Paths.Database)
		assert.Equal(t, "/from/cli", cfg.Paths.InstallRoot)
	})

	t.Run("cli config path wins over env config path", func(t *testing.T) {
		envPath := writeConfig(t, `
[sync]
parallel_apps = 2
`)
		cliPath := writeConfig(t, `
[sync]
parallel_apps = 16
`)

		cfg, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.Sync.ParallelApps)
	})
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "sync.poll_interval", closestMatch("sync.pol_interval", knownKeysList))
	assert.Equal(t, "logging.level", closestMatch("logging.lvl", knownKeysList))
	assert.Empty(t, closestMatch("completely_unrelated_key", knownKeysList))
}
