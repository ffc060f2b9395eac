// Package config loads shelfmark configuration from file, environment, and
// defaults via viper, and builds the shared logger.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the resolved shelfmark configuration.
type Config struct {
	// DataDir is where the persisted store lives (default: ~/.shelfmark).
	DataDir string `mapstructure:"data_dir"`

	// Backend selects the key-value area implementation: "file" or "sqlite".
	Backend string `mapstructure:"backend"`

	// StarterTags overrides the default starter tag list.
	StarterTags []string `mapstructure:"starter_tags"`

	// SettleDelay for the change propagation loop.
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// PollInterval for the SQLite backend's change feed.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// ServePort for the surfaces WebSocket server.
	ServePort int `mapstructure:"serve_port"`

	// Log controls the optional rotating log file.
	Log LogConfig `mapstructure:"log"`
}

// LogConfig controls log output rotation.
type LogConfig struct {
	// File is the log file path; empty logs to stderr.
	File string `mapstructure:"file"`

	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Load reads configuration from the given file (optional), the environment
// (SHELFMARK_* variables), and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("data_dir", filepath.Join(home, ".shelfmark"))
	v.SetDefault("backend", "file")
	v.SetDefault("settle_delay", 100*time.Millisecond)
	v.SetDefault("poll_interval", 100*time.Millisecond)
	v.SetDefault("serve_port", 8710)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	v.SetEnvPrefix("SHELFMARK")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("shelfmark")
		v.AddConfigPath(filepath.Join(home, ".config", "shelfmark"))
		v.AddConfigPath(filepath.Join(home, ".shelfmark"))
		if err := v.ReadInConfig(); err != nil {
			// A missing config file is fine; anything else is not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Backend != "file" && cfg.Backend != "sqlite" {
		return nil, fmt.Errorf("unknown backend %q (want file or sqlite)", cfg.Backend)
	}
	return &cfg, nil
}

// StorePath returns the backing store path for the configured backend.
func (c *Config) StorePath() string {
	switch c.Backend {
	case "sqlite":
		return filepath.Join(c.DataDir, "shelfmark.db")
	default:
		return filepath.Join(c.DataDir, "shelfmark.json")
	}
}

// NewLogger builds the shared logger, rotating through lumberjack when a
// log file is configured.
func (c *Config) NewLogger(prefix string) *log.Logger {
	if c.Log.File == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	writer := &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
	}
	return log.New(writer, prefix, log.LstdFlags)
}
