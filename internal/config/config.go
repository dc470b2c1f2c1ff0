// Package config loads the daemon configuration: TOML file over
// defaults. Every section maps to one subsystem of the binary.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration.
type Config struct {
	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Notify   NotifyConfig   `toml:"notify"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

// Addr returns the host:port listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures sqlite storage.
type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

// GatewayConfig configures the payment processor adapter.
type GatewayConfig struct {
	BaseURL        string `toml:"base_url"`
	AuthBaseURL    string `toml:"auth_base_url"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	RedirectURL    string `toml:"redirect_url"`
	StateSecret    string `toml:"state_secret"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	FeePercent     string `toml:"fee_percent"` // platform commission, e.g. "2.5"
}

// Timeout returns the per-attempt HTTP timeout.
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebhookConfig configures the inbox processor.
type WebhookConfig struct {
	PollSeconds int `toml:"poll_seconds"`
}

// PollInterval returns the inbox sweep interval.
func (c WebhookConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// NotifyConfig configures the notification dispatcher.
type NotifyConfig struct {
	SinkURL     string `toml:"sink_url"`
	PollSeconds int    `toml:"poll_seconds"`
}

// PollInterval returns the dispatcher sweep interval.
func (c NotifyConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// DefaultConfig returns the built-in defaults. Gateway credentials have
// no sane default and must come from the config file.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:          "127.0.0.1",
			Port:          8990,
			EnableMetrics: true,
		},
		Database: DatabaseConfig{
			Dir: defaultDataDir(),
		},
		Gateway: GatewayConfig{
			TimeoutSeconds: 10,
			MaxRetries:     3,
			FeePercent:     "2.5",
		},
		Webhook: WebhookConfig{
			PollSeconds: 5,
		},
		Notify: NotifyConfig{
			PollSeconds: 10,
		},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing
// file is not an error: the defaults are the config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return home + "/.illustra"
}
