// Package config loads and validates the engine's runtime configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taskroute/engine/internal/domain"
	"github.com/taskroute/engine/internal/ledger"
)

// ProviderConfig defines how to launch a worker's backing process.
type ProviderConfig struct {
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	TimeoutSec int               `yaml:"timeout_sec"`
}

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath             string                    `yaml:"db_path"`
	CatalogPath        string                    `yaml:"catalog_path"`
	ListenAddr         string                    `yaml:"listen_addr"`
	MaxParallelWorkers int                       `yaml:"max_parallel_workers"`
	RateLimitPerMinute int                       `yaml:"rate_limit_per_minute"`
	AllowedTools       []string                  `yaml:"allowed_tools"`
	Providers          map[string]ProviderConfig `yaml:"providers"`
	Policy             ledger.PolicyConfig       `yaml:"policy"`
}

// Load reads a YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, domain.WrapEngineError(domain.ErrConfigInvalid.Code, "parse config YAML", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9820"
	}
	if c.MaxParallelWorkers == 0 {
		c.MaxParallelWorkers = 4
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.CatalogPath == "" {
		problems = append(problems, "catalog_path is required")
	}
	if len(c.Providers) == 0 {
		problems = append(problems, "at least one provider is required")
	}
	if c.MaxParallelWorkers < 0 {
		problems = append(problems, "max_parallel_workers must not be negative")
	}
	if c.RateLimitPerMinute < 0 {
		problems = append(problems, "rate_limit_per_minute must not be negative")
	}
	if c.Policy.ExcellentMultiplier < 0 {
		problems = append(problems, "policy.excellent_multiplier must not be negative")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
