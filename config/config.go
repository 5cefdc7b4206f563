// Package config provides configuration loading and management for
// semharvest.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete semharvest configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Match    MatchConfig    `yaml:"match"`
	Harvest  HarvestConfig  `yaml:"harvest"`
	Units    UnitsConfig    `yaml:"units"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// RegistryConfig configures the persistent registry.
type RegistryConfig struct {
	// Dir is the registry directory holding the four layer files.
	Dir string `yaml:"dir"`
}

// MatchConfig configures the acceptance policy.
type MatchConfig struct {
	// AutoAccept is the minimum confidence for automatic acceptance.
	AutoAccept float64 `yaml:"auto_accept"`
	// Suggest is the minimum confidence for a review suggestion.
	Suggest float64 `yaml:"suggest"`
}

// HarvestConfig configures refresh cycles.
type HarvestConfig struct {
	// Workers bounds concurrent per-dataset refresh tasks.
	Workers int `yaml:"workers"`
	// RulePacks is a glob (doublestar) selecting per-dataset rule pack
	// YAML files.
	RulePacks string `yaml:"rule_packs"`
	// Catalogs is a glob selecting harvested catalog dump files.
	Catalogs string `yaml:"catalogs"`
	// AllowOverwrite lets a refresh replace accepted mappings that
	// disagree with new results. Off by default.
	AllowOverwrite bool `yaml:"allow_overwrite"`
}

// UnitsConfig configures unit normalization.
type UnitsConfig struct {
	// Aliases is an optional YAML file of extra unit aliases merged over
	// the built-in table.
	Aliases string `yaml:"aliases"`
}

// NATSConfig configures the optional refresh announcer.
type NATSConfig struct {
	// URL is the NATS server URL (empty = announcements disabled).
	URL string `yaml:"url"`
	// Subject is the publish subject prefix.
	Subject string `yaml:"subject"`
}

// MetricsConfig configures the optional metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics in watch mode (empty =
	// disabled).
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Dir: "registry",
		},
		Match: MatchConfig{
			AutoAccept: 0.90,
			Suggest:    0.60,
		},
		Harvest: HarvestConfig{
			Workers:   4,
			RulePacks: "rulepacks/*.yaml",
			Catalogs:  "catalogs/*.json",
		},
		NATS: NATSConfig{
			Subject: "semharvest.refresh",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Registry.Dir == "" {
		return fmt.Errorf("registry.dir is required")
	}
	if c.Match.AutoAccept < 0 || c.Match.AutoAccept > 1 {
		return fmt.Errorf("match.auto_accept must be between 0 and 1")
	}
	if c.Match.Suggest < 0 || c.Match.Suggest > 1 {
		return fmt.Errorf("match.suggest must be between 0 and 1")
	}
	if c.Match.Suggest > c.Match.AutoAccept {
		return fmt.Errorf("match.suggest must not exceed match.auto_accept")
	}
	if c.Harvest.Workers < 1 {
		return fmt.Errorf("harvest.workers must be at least 1")
	}
	return nil
}

// Merge overlays non-zero fields from other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Registry.Dir != "" {
		c.Registry.Dir = other.Registry.Dir
	}
	if other.Match.AutoAccept != 0 {
		c.Match.AutoAccept = other.Match.AutoAccept
	}
	if other.Match.Suggest != 0 {
		c.Match.Suggest = other.Match.Suggest
	}
	if other.Harvest.Workers != 0 {
		c.Harvest.Workers = other.Harvest.Workers
	}
	if other.Harvest.RulePacks != "" {
		c.Harvest.RulePacks = other.Harvest.RulePacks
	}
	if other.Harvest.Catalogs != "" {
		c.Harvest.Catalogs = other.Harvest.Catalogs
	}
	if other.Harvest.AllowOverwrite {
		c.Harvest.AllowOverwrite = true
	}
	if other.Units.Aliases != "" {
		c.Units.Aliases = other.Units.Aliases
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
