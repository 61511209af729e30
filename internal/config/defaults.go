package config

import "path/filepath"

// Default values for configuration options. These are "layer 0" of the
// override chain and are chosen so the tracker runs without a config file.
const (
	defaultPollInterval = "5m"
	defaultParallelApps = 4
	defaultLogLevel     = "info"
	defaultLogFormat    = "auto"

	databaseFileName = "state.db"
	manifestFileName = "manifest.toml"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		Paths: PathsConfig{
			Database: filepath.Join(dataDir, databaseFileName),
			Manifest: filepath.Join(DefaultConfigDir(), manifestFileName),
		},
		Sync: SyncConfig{
			PollInterval: defaultPollInterval,
			ParallelApps: defaultParallelApps,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
