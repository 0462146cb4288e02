// Package config loads the application configuration from defaults, an
// optional YAML file and the environment, and validates it.
package config

import (
	"fmt"
	"time"
)

// Default values for optional settings.
const (
	DefaultConfigPath = "config.yaml"

	DefaultLogLevel = "info"

	DefaultDatabasePath = "chat_logs.db"

	DefaultGeminiModel       = "gemini-1.5-flash"
	DefaultGeminiTemperature = 0.3
	DefaultGeminiTimeout     = 2 * time.Minute
	DefaultGeminiMaxRetries  = 3
	DefaultGeminiRetryDelay  = 5
	DefaultBreakerFailures   = 5
	DefaultBreakerCooldown   = 5 * time.Minute

	DefaultDigestWindow          = 24 * time.Hour
	DefaultDigestMaxLength       = 3800
	DefaultDigestRetentionDays   = 14
	DefaultDigestHour            = 21
	DefaultDigestMinute          = 0
	DefaultDigestTimezone        = "UTC"
	DefaultDigestStoreTimeout    = 30 * time.Second
	DefaultDigestDeliveryTimeout = 10 * time.Second
	DefaultDigestIngestTimeout   = 5 * time.Second

	DefaultSQLMaintenanceSchedule = "0 3 * * 0"
)

// Config is the complete application configuration. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Digest    DigestConfig    `mapstructure:"digest"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"             validate:"required"`
	ModelName         string        `mapstructure:"model_name"          validate:"required"`
	BaseURL           string        `mapstructure:"base_url"            validate:"omitempty,url"`
	Temperature       float32       `mapstructure:"temperature"         validate:"gte=0,lte=2"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"gte=0"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	BreakerFailures   int           `mapstructure:"breaker_failures"    validate:"gte=0"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"    validate:"gte=0"`
}

// DigestConfig controls the daily digest run.
type DigestConfig struct {
	Window          time.Duration `mapstructure:"window"           validate:"gt=0"`
	MaxLength       int           `mapstructure:"max_length"       validate:"gt=0,lte=4096"`
	RetentionDays   int           `mapstructure:"retention_days"   validate:"gte=1"`
	Hour            int           `mapstructure:"hour"             validate:"gte=0,lte=23"`
	Minute          int           `mapstructure:"minute"           validate:"gte=0,lte=59"`
	Timezone        string        `mapstructure:"timezone"         validate:"required,timezone"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"    validate:"gt=0"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" validate:"gt=0"`
	IngestTimeout   time.Duration `mapstructure:"ingest_timeout"   validate:"gt=0"`
}

// Location returns the time zone the daily run is scheduled in.
func (d DigestConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid digest timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

// CronExpression returns the daily schedule as a five-field cron expression.
func (d DigestConfig) CronExpression() string {
	return fmt.Sprintf("%d %d * * *", d.Minute, d.Hour)
}

// SchedulerConfig lists the maintenance tasks besides the daily digest.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}
