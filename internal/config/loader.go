package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/edgard/chatdigest/internal/errs"
)

// envAliases binds settings to the environment names used by existing
// deployments, in addition to the derived SECTION_KEY names.
var envAliases = map[string][]string{
	"telegram.token":        {"TELEGRAM_BOT_TOKEN"},
	"database.path":         {"SQLITE_DB_PATH"},
	"digest.retention_days": {"SUMMARY_RETENTION_DAYS"},
	"logger.level":          {"LOG_LEVEL"},
	"logger.json":           {"LOG_JSON"},
}

// Load reads the configuration with the following precedence, lowest first:
//  1. built-in defaults
//  2. the YAML file at path (DefaultConfigPath when empty)
//  3. environment variables
//
// A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing || explicit {
			return nil, errs.NewConfigError(fmt.Sprintf("failed to read config file %s", path), err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, errs.NewConfigError("failed to bind environment variable", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.NewConfigError("failed to parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tag constraints of cfg.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return errs.NewConfigError("invalid configuration: "+strings.Join(fields, ", "), err)
		}
		return errs.NewConfigError("invalid configuration", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("telegram.token", "")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", DefaultGeminiModel)
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.temperature", DefaultGeminiTemperature)
	v.SetDefault("gemini.timeout", DefaultGeminiTimeout)
	v.SetDefault("gemini.max_retries", DefaultGeminiMaxRetries)
	v.SetDefault("gemini.retry_delay_seconds", DefaultGeminiRetryDelay)
	v.SetDefault("gemini.breaker_failures", DefaultBreakerFailures)
	v.SetDefault("gemini.breaker_cooldown", DefaultBreakerCooldown)

	v.SetDefault("digest.window", DefaultDigestWindow)
	v.SetDefault("digest.max_length", DefaultDigestMaxLength)
	v.SetDefault("digest.retention_days", DefaultDigestRetentionDays)
	v.SetDefault("digest.hour", DefaultDigestHour)
	v.SetDefault("digest.minute", DefaultDigestMinute)
	v.SetDefault("digest.timezone", DefaultDigestTimezone)
	v.SetDefault("digest.store_timeout", DefaultDigestStoreTimeout)
	v.SetDefault("digest.delivery_timeout", DefaultDigestDeliveryTimeout)
	v.SetDefault("digest.ingest_timeout", DefaultDigestIngestTimeout)

	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", DefaultSQLMaintenanceSchedule)

	v.SetDefault("metrics.addr", "")
}
