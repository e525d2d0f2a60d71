// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantfold/fundrank/internal/pipeline"
	"github.com/quantfold/fundrank/internal/provider"
)

// ProviderEntry configures one upstream provider: its REST endpoint, its
// place in the priority order and its static confidence weight.
type ProviderEntry struct {
	Name           string            `yaml:"name"`
	Priority       int               `yaml:"priority"`
	Confidence     float64           `yaml:"confidence"`
	BaseURL        string            `yaml:"base_url"`
	APIKeyParam    string            `yaml:"api_key_param"`
	APIKeyEnv      string            `yaml:"api_key_env"` // env var holding the key; credentials never live in the file
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	FieldMap       map[string]string `yaml:"field_map"`
	PeriodMap      map[string]string `yaml:"period_map"`
}

// RedisConfig configures the optional provider-response cache.
type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

// PostgresConfig configures the optional score store.
type PostgresConfig struct {
	Enabled bool          `yaml:"enabled"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the health/metrics listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the full application configuration.
type Config struct {
	Providers    []ProviderEntry             `yaml:"providers"`
	Accounts     []provider.AccountConfig    `yaml:"accounts"`
	Pool         provider.PoolConfig         `yaml:"pool"`
	Orchestrator pipeline.OrchestratorConfig `yaml:"orchestrator"`
	Runner       pipeline.RunnerConfig       `yaml:"runner"`
	Price        provider.PriceConfig        `yaml:"price"`
	Redis        RedisConfig                 `yaml:"redis"`
	Postgres     PostgresConfig              `yaml:"postgres"`
	HTTP         HTTPConfig                  `yaml:"http"`

	// ScoringConfigPath and ThresholdTablePath point at the tunable
	// scoring model; empty paths fall back to the shipped defaults.
	ScoringConfigPath  string `yaml:"scoring_config_path"`
	ThresholdTablePath string `yaml:"threshold_table_path"`
}

// Load reads and validates the application configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run on. These are
// the only failures that abort a run outright.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no providers configured")
	}
	seen := make(map[string]bool)
	priorities := make(map[int]string)
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %s", p.Name)
		}
		seen[p.Name] = true
		if other, ok := priorities[p.Priority]; ok {
			return fmt.Errorf("providers %s and %s share priority %d", other, p.Name, p.Priority)
		}
		priorities[p.Priority] = p.Name
		if p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("provider %s: confidence %v outside [0,1]", p.Name, p.Confidence)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", p.Name)
		}
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	for i, a := range c.Accounts {
		if !seen[a.Provider] {
			return fmt.Errorf("account %d references unknown provider %s", i, a.Provider)
		}
		if a.MinuteQuota <= 0 && a.DayQuota <= 0 {
			return fmt.Errorf("account %d (%s): at least one of minute_quota/day_quota must be positive", i, a.Provider)
		}
	}
	if c.Runner.MinSuccessRate < 0 || c.Runner.MinSuccessRate > 1 {
		return fmt.Errorf("runner min_success_rate %v outside [0,1]", c.Runner.MinSuccessRate)
	}
	return nil
}

// Specs derives the provider spec list handed to the orchestrator.
func (c *Config) Specs() []provider.Spec {
	specs := make([]provider.Spec, 0, len(c.Providers))
	for _, p := range c.Providers {
		specs = append(specs, provider.Spec{Name: p.Name, Priority: p.Priority, Confidence: p.Confidence})
	}
	return specs
}
