// Package config loads the capture client's configuration from
// environment variables and an optional ~/.memories/config.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all client configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Data   DataConfig   `mapstructure:"data"   validate:"required"`
	Sync   SyncConfig   `mapstructure:"sync"   validate:"required"`
}

// ServerConfig points the client at a memories server.
type ServerConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// DataConfig locates the client's local state.
type DataConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// SyncConfig tunes the background drain.
type SyncConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds" validate:"required,gt=0"`
	MaxAttempts     int `mapstructure:"max_attempts"     validate:"required,gt=0"`
	BaseDelayMillis int `mapstructure:"base_delay_ms"    validate:"required,gt=0"`
	MaxDelayMillis  int `mapstructure:"max_delay_ms"     validate:"required,gt=0"`
	Concurrency     int `mapstructure:"concurrency"      validate:"required,gt=0"`
}

// QueuePath is the capture queue database inside the data directory.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Data.Dir, "capture.db")
}

// BaseDelay returns the first retry backoff as a duration.
func (s SyncConfig) BaseDelay() time.Duration {
	return time.Duration(s.BaseDelayMillis) * time.Millisecond
}

// MaxDelay returns the backoff cap as a duration.
func (s SyncConfig) MaxDelay() time.Duration {
	return time.Duration(s.MaxDelayMillis) * time.Millisecond
}

// Interval returns the periodic drain interval as a duration.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Load reads client configuration. Environment variables (prefix
// MEMORIES_, nested keys joined with underscores, e.g.
// MEMORIES_SERVER_URL) take precedence over file values.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".memories"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEMORIES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "http://localhost:8080")

	if home, err := os.UserHomeDir(); err == nil {
		v.SetDefault("data.dir", filepath.Join(home, ".memories"))
	} else {
		v.SetDefault("data.dir", ".memories")
	}

	v.SetDefault("sync.interval_seconds", 60)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.base_delay_ms", 1000)
	v.SetDefault("sync.max_delay_ms", 30000)
	v.SetDefault("sync.concurrency", 4)
}
