// Package engine owns the cooling-session lifecycle and the periodic
// compliance sweep.
package engine

import "time"

// Config defines the engine configuration.
type Config struct {
	// SiteID is the venue this engine instance monitors.
	SiteID string `yaml:"site_id"`
	// SweepInterval is the period of the status recomputation sweep. The
	// default of 10s is deliberately far below the 30-minute gap between the
	// soft and hard deadlines, so a warning is never silently skipped.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		SiteID:        "default",
		SweepInterval: 10 * time.Second,
	}
}
