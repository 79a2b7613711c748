package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
client:
  id: "panel-kitchen"
  location: "kitchen"
backend:
  base_url: "http://backend:5000"
  timeout: 5
realtime:
  broker:
    host: "broker.local"
    port: 8883
    tls: true
    client_id: "test-client"
  channels:
    sensor: "home-sensors"
    control: "home-control"
    alert: "home-alerts"
sync:
  fallback_delay_ms: 750
  grace_window_ms: 1200
database:
  path: "/tmp/test.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Client.ID != "panel-kitchen" {
		t.Errorf("Client.ID = %q, want %q", cfg.Client.ID, "panel-kitchen")
	}
	if cfg.Backend.BaseURL != "http://backend:5000" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://backend:5000")
	}
	if !cfg.Realtime.Broker.TLS {
		t.Error("Realtime.Broker.TLS = false, want true")
	}
	if cfg.Sync.FallbackDelay() != 750*time.Millisecond {
		t.Errorf("Sync.FallbackDelay() = %v, want 750ms", cfg.Sync.FallbackDelay())
	}
	if cfg.Sync.GraceWindow() != 1200*time.Millisecond {
		t.Errorf("Sync.GraceWindow() = %v, want 1.2s", cfg.Sync.GraceWindow())
	}
}

func TestLoad_Defaults(t *testing.T) {
	// A minimal file should pick up defaults for everything unspecified.
	cfg, err := Load(writeConfig(t, "client:\n  id: test\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Realtime.Channels.Control != "smart-home-control" {
		t.Errorf("Channels.Control = %q, want default", cfg.Realtime.Channels.Control)
	}
	if cfg.Sync.FallbackDelayMs != 1000 {
		t.Errorf("Sync.FallbackDelayMs = %d, want 1000", cfg.Sync.FallbackDelayMs)
	}
	if cfg.Database.Path != "data/smarthome.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if cfg.Alerts.Temperature.High != 30.0 {
		t.Errorf("Alerts.Temperature.High = %v, want 30.0", cfg.Alerts.Temperature.High)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SMARTHOME_DATABASE_PATH", "/var/lib/override.db")

	cfg, err := Load(writeConfig(t, "database:\n  path: /tmp/file.db\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidate_ChannelConflict(t *testing.T) {
	cfg := Default()
	cfg.Realtime.Channels.Alert = cfg.Realtime.Channels.Sensor

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for duplicate channel names, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing backend url", func(c *Config) { c.Backend.BaseURL = "" }},
		{"zero backend timeout", func(c *Config) { c.Backend.Timeout = 0 }},
		{"missing broker host", func(c *Config) { c.Realtime.Broker.Host = "" }},
		{"bad broker port", func(c *Config) { c.Realtime.Broker.Port = 70000 }},
		{"bad qos", func(c *Config) { c.Realtime.QoS = 3 }},
		{"empty channel", func(c *Config) { c.Realtime.Channels.Control = "" }},
		{"zero fallback delay", func(c *Config) { c.Sync.FallbackDelayMs = 0 }},
		{"zero grace window", func(c *Config) { c.Sync.GraceWindowMs = 0 }},
		{"bad api port", func(c *Config) { c.API.Port = -1 }},
		{"missing db path", func(c *Config) { c.Database.Path = "" }},
		{"influx enabled without url", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() expected error, got nil")
			}
		})
	}
}
