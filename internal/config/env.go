package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "DEPOTSYNC_CONFIG"
	EnvDatabase    = "DEPOTSYNC_DATABASE"
	EnvInstallRoot = "DEPOTSYNC_INSTALL_ROOT"
	EnvFeedURL     = "DEPOTSYNC_FEED_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // DEPOTSYNC_CONFIG: override config file path
	Database    string // DEPOTSYNC_DATABASE: state database path
	InstallRoot string // DEPOTSYNC_INSTALL_ROOT: install tree root
	FeedURL     string // DEPOTSYNC_FEED_URL: change-announcement feed URL
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		Database:    os.Getenv(EnvDatabase),
		InstallRoot: os.Getenv(EnvInstallRoot),
		FeedURL:     os.Getenv(EnvFeedURL),
	}
}
