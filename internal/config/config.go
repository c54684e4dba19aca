// Package config loads the monitoring configuration from the
// .alphaloop.yaml file, falling back to defaults when the file or
// individual keys are missing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the base path.
const FileName = ".alphaloop.yaml"

// Config is the full monitoring configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Alerts   AlertConfig    `yaml:"alerts"`
	Collapse CollapseConfig `yaml:"collapse"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
}

// ServerConfig configures the metrics exposition endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SamplerConfig configures the host resource sampler.
type SamplerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// AlertConfig configures the alert engine.
type AlertConfig struct {
	EvaluateInterval   time.Duration `yaml:"evaluate_interval"`
	Suppression        time.Duration `yaml:"suppression"`
	MemoryPercent      float64       `yaml:"memory_percent"`
	Diversity          float64       `yaml:"diversity"`
	Staleness          int           `yaml:"staleness"`
	SuccessRate        float64       `yaml:"success_rate"`
	SuccessRateWindow  int           `yaml:"success_rate_window"`
	OrphanedContainers int           `yaml:"orphaned_containers"`
}

// CollapseConfig configures windowed diversity collapse detection.
type CollapseConfig struct {
	Window    int     `yaml:"window"`
	Threshold float64 `yaml:"threshold"`
}

// SandboxConfig configures the container runtime client.
type SandboxConfig struct {
	Binary         string        `yaml:"binary"`
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server:   ServerConfig{Addr: ":9191"},
		Sampler:  SamplerConfig{Interval: 30 * time.Second},
		Alerts: AlertConfig{
			EvaluateInterval:   10 * time.Second,
			Suppression:        300 * time.Second,
			MemoryPercent:      80,
			Diversity:          0.1,
			Staleness:          20,
			SuccessRate:        0.3,
			SuccessRateWindow:  20,
			OrphanedContainers: 5,
		},
		Collapse: CollapseConfig{Window: 5, Threshold: 0.1},
		Sandbox:  SandboxConfig{Binary: "docker", RescanInterval: 5 * time.Minute},
	}
}

// Load reads the configuration file from basePath. A missing file returns
// the defaults; missing keys fall back individually through viper
// defaults. The result is always validated.
func Load(basePath string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(filepath.Join(basePath, FileName))
	v.SetConfigType("yaml")

	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("sampler.interval", cfg.Sampler.Interval)
	v.SetDefault("alerts.evaluate_interval", cfg.Alerts.EvaluateInterval)
	v.SetDefault("alerts.suppression", cfg.Alerts.Suppression)
	v.SetDefault("alerts.memory_percent", cfg.Alerts.MemoryPercent)
	v.SetDefault("alerts.diversity", cfg.Alerts.Diversity)
	v.SetDefault("alerts.staleness", cfg.Alerts.Staleness)
	v.SetDefault("alerts.success_rate", cfg.Alerts.SuccessRate)
	v.SetDefault("alerts.success_rate_window", cfg.Alerts.SuccessRateWindow)
	v.SetDefault("alerts.orphaned_containers", cfg.Alerts.OrphanedContainers)
	v.SetDefault("collapse.window", cfg.Collapse.Window)
	v.SetDefault("collapse.threshold", cfg.Collapse.Threshold)
	v.SetDefault("sandbox.binary", cfg.Sandbox.Binary)
	v.SetDefault("sandbox.rescan_interval", cfg.Sandbox.RescanInterval)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading %s: %w", FileName, err)
			}
		}
	}

	cfg.LogLevel = v.GetString("log_level")
	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Sampler.Interval = v.GetDuration("sampler.interval")
	cfg.Alerts.EvaluateInterval = v.GetDuration("alerts.evaluate_interval")
	cfg.Alerts.Suppression = v.GetDuration("alerts.suppression")
	cfg.Alerts.MemoryPercent = v.GetFloat64("alerts.memory_percent")
	cfg.Alerts.Diversity = v.GetFloat64("alerts.diversity")
	cfg.Alerts.Staleness = v.GetInt("alerts.staleness")
	cfg.Alerts.SuccessRate = v.GetFloat64("alerts.success_rate")
	cfg.Alerts.SuccessRateWindow = v.GetInt("alerts.success_rate_window")
	cfg.Alerts.OrphanedContainers = v.GetInt("alerts.orphaned_containers")
	cfg.Collapse.Window = v.GetInt("collapse.window")
	cfg.Collapse.Threshold = v.GetFloat64("collapse.threshold")
	cfg.Sandbox.Binary = v.GetString("sandbox.binary")
	cfg.Sandbox.RescanInterval = v.GetDuration("sandbox.rescan_interval")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise produce nonsensical
// monitoring behaviour.
func (c *Config) Validate() error {
	if c.Collapse.Window <= 0 {
		return fmt.Errorf("collapse.window must be positive, got %d", c.Collapse.Window)
	}
	if c.Collapse.Threshold <= 0 || c.Collapse.Threshold > 1 {
		return fmt.Errorf("collapse.threshold must be in (0, 1], got %g", c.Collapse.Threshold)
	}
	if c.Alerts.Diversity < 0 || c.Alerts.Diversity > 1 {
		return fmt.Errorf("alerts.diversity must be in [0, 1], got %g", c.Alerts.Diversity)
	}
	if c.Alerts.SuccessRate < 0 || c.Alerts.SuccessRate > 1 {
		return fmt.Errorf("alerts.success_rate must be in [0, 1], got %g", c.Alerts.SuccessRate)
	}
	if c.Alerts.MemoryPercent <= 0 || c.Alerts.MemoryPercent > 100 {
		return fmt.Errorf("alerts.memory_percent must be in (0, 100], got %g", c.Alerts.MemoryPercent)
	}
	if c.Alerts.SuccessRateWindow <= 0 {
		return fmt.Errorf("alerts.success_rate_window must be positive, got %d", c.Alerts.SuccessRateWindow)
	}
	if c.Sampler.Interval <= 0 {
		return fmt.Errorf("sampler.interval must be positive, got %s", c.Sampler.Interval)
	}
	if c.Alerts.EvaluateInterval <= 0 {
		return fmt.Errorf("alerts.evaluate_interval must be positive, got %s", c.Alerts.EvaluateInterval)
	}
	return nil
}

// WriteDefault writes the default configuration as YAML to basePath,
// refusing to overwrite an existing file.
func WriteDefault(basePath string) (string, error) {
	path := filepath.Join(basePath, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
