package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Interval   time.Duration `yaml:"interval"`
	LogLevel   string        `yaml:"log_level"`
	Probes     Probes        `yaml:"probes"`
	Thresholds Thresholds    `yaml:"thresholds"`
	Server     Server        `yaml:"server"`
	History    History       `yaml:"history"`
	Telemetry  Telemetry     `yaml:"telemetry"`
}

// Probes names the host locations each refresh reads
type Probes struct {
	VersionFile string `yaml:"version_file"`
	UpdateLog   string `yaml:"update_log"`
	StagedPath  string `yaml:"staged_path"`
	DiskMount   string `yaml:"disk_mount"`
}

// Thresholds tunes when a snapshot escalates
type Thresholds struct {
	CriticalDays     int           `yaml:"critical_days"`
	MinDiskFreeBytes uint64        `yaml:"min_disk_free_bytes"`
	LongUptime       time.Duration `yaml:"long_uptime"`
}

// Server configures the local status API
type Server struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// History configures snapshot persistence
type History struct {
	Dir           string        `yaml:"dir"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// Telemetry configures trace and metric export
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file overrides it
func Default() *Config {
	return &Config{
		Interval: time.Minute,
		LogLevel: "info",
		Probes: Probes{
			VersionFile: "/var/lib/updated/version",
			UpdateLog:   "/var/log/updated/updated.log",
			StagedPath:  "/var/lib/updated/staged",
			DiskMount:   "/",
		},
		Thresholds: Thresholds{
			CriticalDays:     3,
			MinDiskFreeBytes: 10 << 30,
			LongUptime:       720 * time.Hour,
		},
		Server: Server{
			Enabled: true,
			Addr:    "127.0.0.1:9750",
		},
		History: History{
			Dir:           "/var/lib/vahti",
			Retention:     720 * time.Hour,
			PruneSchedule: "0 3 * * *",
		},
		Telemetry: Telemetry{
			Insecure:    true,
			ServiceName: "vahti",
		},
	}
}

// Load reads configuration from path on top of the defaults. An empty
// path yields the defaults unchanged; a path that cannot be read or
// parsed is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate ensures config has usable values
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Thresholds.CriticalDays < 0 {
		return fmt.Errorf("critical_days cannot be negative")
	}
	if c.Probes.UpdateLog == "" {
		return fmt.Errorf("update_log path is required")
	}
	if c.Probes.VersionFile == "" {
		return fmt.Errorf("version_file path is required")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server addr is required when server is enabled")
	}
	if c.History.Dir == "" {
		return fmt.Errorf("history dir is required")
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("history retention cannot be negative")
	}
	if c.History.PruneSchedule != "" {
		if _, err := cron.ParseStandard(c.History.PruneSchedule); err != nil {
			return fmt.Errorf("invalid prune_schedule: %w", err)
		}
	}
	return nil
}
