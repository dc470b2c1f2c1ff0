package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8990 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8990)
	}
	if !cfg.API.EnableMetrics {
		t.Error("API.EnableMetrics should be true by default")
	}
	if cfg.Gateway.TimeoutSeconds != 10 {
		t.Errorf("Gateway.TimeoutSeconds = %d, want 10", cfg.Gateway.TimeoutSeconds)
	}
	if cfg.Gateway.FeePercent != "2.5" {
		t.Errorf("Gateway.FeePercent = %q, want %q", cfg.Gateway.FeePercent, "2.5")
	}
	if cfg.Webhook.PollInterval() != 5*time.Second {
		t.Errorf("Webhook.PollInterval() = %v, want 5s", cfg.Webhook.PollInterval())
	}
	if cfg.Database.Dir == "" {
		t.Error("Database.Dir should have a default")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "illustrad.toml")
	content := `
[api]
host = "0.0.0.0"
port = 9000

[gateway]
client_id = "app-1"
client_secret = "secret"
fee_percent = "5"

[notify]
sink_url = "https://hooks.example.test/notify"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.Addr() != "0.0.0.0:9000" {
		t.Errorf("API.Addr() = %q, want 0.0.0.0:9000", cfg.API.Addr())
	}
	if cfg.Gateway.ClientID != "app-1" || cfg.Gateway.FeePercent != "5" {
		t.Errorf("gateway section not applied: %+v", cfg.Gateway)
	}
	// Untouched sections keep their defaults.
	if cfg.Webhook.PollSeconds != 5 {
		t.Errorf("Webhook.PollSeconds = %d, want default 5", cfg.Webhook.PollSeconds)
	}
	if cfg.Notify.SinkURL != "https://hooks.example.test/notify" {
		t.Errorf("Notify.SinkURL = %q", cfg.Notify.SinkURL)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.Port != 8990 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[api\nport="), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config accepted")
	}
}
