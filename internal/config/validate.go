package config

import (
	"errors"
	"fmt"
	"time"
)

// Valid logging levels and formats.
var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate checks a Config for semantic errors beyond TOML syntax.
// All problems are reported at once rather than one at a time.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Sync.ParallelApps < 1 {
		errs = append(errs, fmt.Errorf("sync.parallel_apps must be at least 1, got %d", cfg.Sync.ParallelApps))
	}

	if cfg.Sync.PollInterval != "" {
		if _, err := time.ParseDuration(cfg.Sync.PollInterval); err != nil {
			errs = append(errs, fmt.Errorf("sync.poll_interval %q is not a valid duration: %w", cfg.Sync.PollInterval, err))
		}
	}

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}

	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("logging.format %q is not one of auto, text, json", cfg.Logging.Format))
	}

	if cfg.Paths.Database == "" {
		errs = append(errs, errors.New("paths.database must not be empty"))
	}

	return errors.Join(errs...)
}

// PollDuration parses the configured poll interval. Validate guarantees it
// parses, so this is safe after a successful load.
func (c *Config) PollDuration() time.Duration {
	d, err := time.ParseDuration(c.Sync.PollInterval)
	if err != nil {
		return 5 * time.Minute
	}

	return d
}
