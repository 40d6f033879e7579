package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1884
api:
  port: 9090
scheduler:
  cron_mode: standard
  load_owner_id: "user-1"
automations:
  definitions_dir: "./automations"
webhook:
  breaker:
    max_failures: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want test-site", cfg.Site.ID)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.Scheduler.CronMode != "standard" || cfg.Scheduler.LoadOwnerID != "user-1" {
		t.Errorf("Scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Automations.DefinitionsDir != "./automations" {
		t.Errorf("DefinitionsDir = %q", cfg.Automations.DefinitionsDir)
	}
	if cfg.Webhook.Breaker.MaxFailures != 3 {
		t.Errorf("Breaker.MaxFailures = %d, want 3", cfg.Webhook.Breaker.MaxFailures)
	}
	// Untouched sections keep their defaults.
	if cfg.Webhook.Timeout != 30 || cfg.Notify.TopicPrefix != "flowline/notify" {
		t.Errorf("defaults lost: webhook.timeout=%d notify.topic_prefix=%q", cfg.Webhook.Timeout, cfg.Notify.TopicPrefix)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "site:\n  id: \"\"\nscheduler:\n  cron_mode: quartz\n"))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"site.id", "scheduler.cron_mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoadDefault(t *testing.T) {
	t.Setenv("FLOWLINE_API_PORT", "9191")
	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.API.Port != 9191 {
		t.Errorf("API.Port = %d, want 9191", cfg.API.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing site ID", func(c *Config) { c.Site.ID = "" }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"mqtt enabled without host", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker.Host = "" }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"influx enabled without url", func(c *Config) { c.InfluxDB.Enabled = true }, true},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"file output without path", func(c *Config) { c.Logging.Output = "file"; c.Logging.File.Path = "" }, true},
		{"standard cron mode", func(c *Config) { c.Scheduler.CronMode = "standard" }, false},
		{"unknown cron mode", func(c *Config) { c.Scheduler.CronMode = "" }, true},
		{"rate limit without budget", func(c *Config) { c.Security.RateLimit.RequestsPerMinute = 0 }, true},
		{"rate limit disabled", func(c *Config) {
			c.Security.RateLimit.Enabled = false
			c.Security.RateLimit.RequestsPerMinute = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{API: APIConfig{Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60}}}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("FLOWLINE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FLOWLINE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FLOWLINE_MQTT_USERNAME", "testuser")
	t.Setenv("FLOWLINE_MQTT_PASSWORD", "testpass")
	t.Setenv("FLOWLINE_MQTT_ENABLED", "true")
	t.Setenv("FLOWLINE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("FLOWLINE_SMTP_PASSWORD", "smtp-secret")
	t.Setenv("FLOWLINE_SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := map[string][2]string{
		"Database.Path":          {cfg.Database.Path, "/custom/path.db"},
		"MQTT.Broker.Host":       {cfg.MQTT.Broker.Host, "mqtt.example.com"},
		"MQTT.Auth.Username":     {cfg.MQTT.Auth.Username, "testuser"},
		"MQTT.Auth.Password":     {cfg.MQTT.Auth.Password, "testpass"},
		"InfluxDB.Token":         {cfg.InfluxDB.Token, "secret-token"},
		"Email.Password":         {cfg.Email.Password, "smtp-secret"},
		"Notify.SlackWebhookURL": {cfg.Notify.SlackWebhookURL, "https://hooks.slack.test/x"},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", field, c[0], c[1])
		}
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled should be true")
	}
}

func TestApplyEnvOverrides_InvalidNumber(t *testing.T) {
	t.Setenv("FLOWLINE_API_PORT", "eighty")
	if err := applyEnvOverrides(Default()); err == nil {
		t.Error("expected error for non-numeric FLOWLINE_API_PORT")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Scheduler.CronMode != "exact" {
		t.Errorf("Scheduler.CronMode = %q, want exact", cfg.Scheduler.CronMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should validate: %v", err)
	}
}
