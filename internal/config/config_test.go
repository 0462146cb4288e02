package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgard/chatdigest/internal/config"
	"github.com/edgard/chatdigest/internal/errs"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Telegram.Token != "123:abc" || cfg.Gemini.APIKey != "key" {
		t.Errorf("credentials not read from environment: %+v %+v", cfg.Telegram, cfg.Gemini)
	}
	if cfg.Gemini.ModelName != "gemini-1.5-flash" {
		t.Errorf("Gemini.ModelName = %q", cfg.Gemini.ModelName)
	}
	if cfg.Database.Path != "chat_logs.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	d := cfg.Digest
	if d.Window != 24*time.Hour || d.MaxLength != 3800 || d.RetentionDays != 14 {
		t.Errorf("Digest = %+v", d)
	}
	if d.CronExpression() != "0 21 * * *" {
		t.Errorf("CronExpression() = %q", d.CronExpression())
	}
	if loc, err := d.Location(); err != nil || loc != time.UTC {
		t.Errorf("Location() = %v, %v", loc, err)
	}
	if task := cfg.Scheduler.Tasks["sql_maintenance"]; !task.Enabled || task.Schedule == "" {
		t.Errorf("sql_maintenance task = %+v", task)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	setRequired(t)
	t.Setenv("SUMMARY_RETENTION_DAYS", "30")
	t.Setenv("GEMINI_MODEL_NAME", "gemini-2.0-flash")
	t.Setenv("SQLITE_DB_PATH", "/data/chat.db")
	t.Setenv("DIGEST_HOUR", "18")

	path := writeFile(t, `
logger:
  level: debug
  json: true
gemini:
  model_name: from-file
  temperature: 0.7
digest:
  hour: 9
  minute: 30
  timezone: Europe/Moscow
  retention_days: 7
  delivery_timeout: 20s
metrics:
  addr: ":9090"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logger.Level != "debug" || !cfg.Logger.JSON {
		t.Errorf("Logger = %+v", cfg.Logger)
	}
	if cfg.Gemini.ModelName != "gemini-2.0-flash" {
		t.Errorf("environment did not override file: model = %q", cfg.Gemini.ModelName)
	}
	if cfg.Gemini.Temperature != 0.7 {
		t.Errorf("Gemini.Temperature = %v", cfg.Gemini.Temperature)
	}
	if cfg.Digest.RetentionDays != 30 {
		t.Errorf("Digest.RetentionDays = %d, want 30", cfg.Digest.RetentionDays)
	}
	if cfg.Database.Path != "/data/chat.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Digest.CronExpression() != "30 18 * * *" {
		t.Errorf("CronExpression() = %q", cfg.Digest.CronExpression())
	}
	if cfg.Digest.DeliveryTimeout != 20*time.Second {
		t.Errorf("Digest.DeliveryTimeout = %v", cfg.Digest.DeliveryTimeout)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	setRequired(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if errs.Code(err) != errs.CodeConfig {
		t.Errorf("Load() error = %v, want a config error", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{
			name: "missing token",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "", "GEMINI_API_KEY": "key"},
		},
		{
			name: "missing api key",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc", "GEMINI_API_KEY": ""},
		},
		{
			name: "hour out of range",
			file: "digest:\n  hour: 24\n",
		},
		{
			name: "unknown timezone",
			file: "digest:\n  timezone: Mars/Olympus\n",
		},
		{
			name: "bad log level",
			file: "logger:\n  level: verbose\n",
		},
		{
			name: "enabled task without schedule",
			file: "scheduler:\n  tasks:\n    sql_maintenance:\n      enabled: true\n      schedule: \"\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env == nil {
				setRequired(t)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, tt.file)

			if _, err := config.Load(path); errs.Code(err) != errs.CodeConfig {
				t.Errorf("Load() error = %v, want a config error", err)
			}
		})
	}
}
