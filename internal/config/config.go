// Package config loads daemon configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Search   SearchConfig   `mapstructure:"search"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Import   ImportConfig   `mapstructure:"import"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SearchConfig holds search pipeline configuration.
type SearchConfig struct {
	// MaxConcurrentSearches bounds simultaneous indexer queries across all
	// targets. This is the global backpressure limit, separate from the
	// per-target cooldown.
	MaxConcurrentSearches int64         `mapstructure:"max_concurrent_searches"`
	SearchTimeout         time.Duration `mapstructure:"search_timeout"`
	MaxRetriesPerCycle    int           `mapstructure:"max_retries_per_cycle"`
	RssSyncCron           string        `mapstructure:"rss_sync_cron"`

	// Cooldown policy table, keyed by target lifecycle state.
	CooldownMissing  time.Duration `mapstructure:"cooldown_missing"`
	CooldownAnime    time.Duration `mapstructure:"cooldown_anime"`
	CooldownStale    time.Duration `mapstructure:"cooldown_stale"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	UnreleasedExtra  time.Duration `mapstructure:"unreleased_extra"`
	PreferredSizeGB  float64       `mapstructure:"preferred_size_gb"`
	PreferredWords   []string      `mapstructure:"preferred_words"`
	CustomFormatFile string        `mapstructure:"custom_format_file"`
}

// QueueConfig holds queue tracker configuration.
type QueueConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
}

// ImportConfig holds import matcher configuration.
type ImportConfig struct {
	CompletedDir   string `mapstructure:"completed_dir"`
	LibraryDir     string `mapstructure:"library_dir"`
	MinFileSizeMB  int64  `mapstructure:"min_file_size_mb"`
	WatchCompleted bool   `mapstructure:"watch_completed"`
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.fetcharr")
	}

	v.SetEnvPrefix("FETCHARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./data/fetcharr.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("search.max_concurrent_searches", 4)
	v.SetDefault("search.search_timeout", 90*time.Second)
	v.SetDefault("search.max_retries_per_cycle", 3)
	v.SetDefault("search.rss_sync_cron", "*/15 * * * *")
	v.SetDefault("search.cooldown_missing", 7*24*time.Hour)
	v.SetDefault("search.cooldown_anime", 24*time.Hour)
	v.SetDefault("search.cooldown_stale", 14*24*time.Hour)
	v.SetDefault("search.stale_after", 90*24*time.Hour)
	v.SetDefault("search.unreleased_extra", 24*time.Hour)
	v.SetDefault("search.preferred_size_gb", 0)
	v.SetDefault("search.preferred_words", []string{})
	v.SetDefault("search.custom_format_file", "")

	v.SetDefault("queue.poll_interval", 30*time.Second)
	v.SetDefault("queue.stall_timeout", 30*time.Minute)

	v.SetDefault("import.completed_dir", "")
	v.SetDefault("import.library_dir", "./data/library")
	v.SetDefault("import.min_file_size_mb", 50)
	v.SetDefault("import.watch_completed", true)
}
