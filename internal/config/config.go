// Package config loads and validates application configuration from
// environment variables and optional config files.
package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Dispatch DispatchConfig `mapstructure:"dispatch" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// ServiceToken authenticates trusted internal callers on the
	// /internal routes. The dispatcher acts with elevated privilege,
	// so this is a shared secret rather than a per-user credential.
	ServiceToken string `mapstructure:"service_token" validate:"required,min=16"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// DispatchConfig tunes the processing job dispatcher.
type DispatchConfig struct {
	// BatchSize caps how many scheduled jobs a single pass claims.
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0"`

	// MaxAttempts bounds automatic retries per job.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// TickSeconds is the interval between periodic dispatcher passes.
	TickSeconds int `mapstructure:"tick_seconds" validate:"required,gt=0"`

	// ReclaimStale enables rescheduling of jobs stuck in processing
	// after a worker crash. Off by default.
	ReclaimStale bool `mapstructure:"reclaim_stale"`

	// StaleAgeMinutes is how long a job may sit in processing before the
	// reclaim pass considers it stuck.
	StaleAgeMinutes int `mapstructure:"stale_age_minutes" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name"     validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"    validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}
