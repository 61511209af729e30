// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for depotsync. It supports a three-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Paths   PathsConfig   `toml:"paths"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

// PathsConfig locates the state database, the install tree watched for
// depot removals, and the app/depot manifest.
type PathsConfig struct {
	Database    string `toml:"database"`
	InstallRoot string `toml:"install_root"`
	Manifest    string `toml:"manifest"`
}

// SyncConfig controls reconciliation behavior: the change-announcement feed,
// polling cadence, and per-app parallelism.
type SyncConfig struct {
	FeedURL      string `toml:"feed_url"`
	PollInterval string `toml:"poll_interval"`
	ParallelApps int    `toml:"parallel_apps"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath  string  // --config flag (empty = use default)
	Database    *string // --db flag
	InstallRoot *string // --install-root flag
}
