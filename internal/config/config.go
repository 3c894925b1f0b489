// Package config loads the daemon configuration for a kiosk device.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration, read from ~/.coolwatch/config.yaml.
type Config struct {
	// SiteID is the venue this device belongs to.
	SiteID string `yaml:"site_id"`
	// ListenAddr is the bind address of the local HTTP API.
	ListenAddr string `yaml:"listen_addr"`
	// DBPath is the location of the local SQLite database.
	DBPath string `yaml:"db_path"`
	// RemoteURL is the HQ backend base URL; empty disables sync entirely.
	RemoteURL string `yaml:"remote_url"`
	// SweepIntervalSeconds is the period of the compliance sweep.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	// ReconcileIntervalSeconds is the period of the background reconcile retry.
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	// AlertCommand is an optional local command run on warning/overdue
	// transitions (buzzer, light relay). Empty disables it.
	AlertCommand string `yaml:"alert_command"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		SiteID:                   "default",
		ListenAddr:               "127.0.0.1:7510",
		DBPath:                   filepath.Join(homeDir, ".coolwatch", "coolwatch.db"),
		RemoteURL:                "",
		SweepIntervalSeconds:     10,
		ReconcileIntervalSeconds: 60,
		AlertCommand:             "",
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadFromHome loads configuration from ~/.coolwatch/config.yaml.
func LoadFromHome() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	path := filepath.Join(home, ".coolwatch", "config.yaml")
	return Load(path)
}

// Save saves configuration to a YAML file, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SiteID == "" {
		return fmt.Errorf("site_id must not be empty")
	}
	if c.SweepIntervalSeconds < 1 {
		return fmt.Errorf("sweep_interval_seconds must be at least 1")
	}
	if c.ReconcileIntervalSeconds < 1 {
		return fmt.Errorf("reconcile_interval_seconds must be at least 1")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	return nil
}

// SweepInterval returns the sweep period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ReconcileInterval returns the reconcile retry period as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}
