// Package config loads groupkit settings from standard locations.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/kpi"
)

// Duration wraps time.Duration so TOML values can be written as
// strings like "5m" or "72h".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config holds all tunable settings.
type Config struct {
	Scoring   kpi.Points      `toml:"scoring"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Deletion  DeletionConfig  `toml:"deletion"`
	Storage   StorageConfig   `toml:"storage"`
	NATS      NATSConfig      `toml:"nats"`
	Logging   LoggingConfig   `toml:"logging"`
}

// SchedulerConfig tunes the periodic tick.
type SchedulerConfig struct {
	// TickInterval is how often recurrence and overdue checks run.
	TickInterval Duration `toml:"tick_interval"`
}

// DeletionConfig tunes the quorum coordinator.
type DeletionConfig struct {
	// RequestTTL is how long a pending deletion request stays
	// approvable.
	RequestTTL Duration `toml:"request_ttl"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// BoltPath is the bolt database file. Empty means in-memory.
	BoltPath string `toml:"bolt_path"`
}

// NATSConfig connects the event bus to a NATS server. An empty URL
// keeps everything on the in-process bus.
type NATSConfig struct {
	URL  string `toml:"url"`
	Name string `toml:"name"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Scoring:   kpi.DefaultPoints(),
		Scheduler: SchedulerConfig{TickInterval: Duration{5 * time.Minute}},
		Deletion:  DeletionConfig{RequestTTL: Duration{72 * time.Hour}},
		Logging:   LoggingConfig{Level: "info"},
		NATS:      NATSConfig{Name: "groupkit"},
	}
}

// StandardPaths returns the config file locations in priority order.
func StandardPaths() []string {
	paths := []string{"groupkit.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "groupkit", "groupkit.toml"))
		paths = append(paths, filepath.Join(home, ".groupkit", "groupkit.toml"))
	}
	return paths
}

// Load reads the first config file found on the standard paths,
// falling back to defaults when none exists. Returns the path used,
// empty for defaults.
func Load() (*Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return cfg, path, nil
		}
	}
	return Default(), "", nil
}

// LoadFile reads one config file. Missing keys keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidInput, "parse config "+path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engines cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.TickInterval.Duration <= 0 {
		return errors.New(errors.CodeInvalidInput, "scheduler tick_interval must be positive")
	}
	if c.Deletion.RequestTTL.Duration < 0 {
		return errors.New(errors.CodeInvalidInput, "deletion request_ttl cannot be negative")
	}
	if c.Scoring.StreakLength < 0 {
		return errors.New(errors.CodeInvalidInput, "scoring streak_length cannot be negative")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown log level %q", c.Logging.Level)
	}
	return nil
}
