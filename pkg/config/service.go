package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/optikiln/optikiln/pkg/artifacts"
	"github.com/optikiln/optikiln/pkg/telemetry"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServiceConfig is the top-level configuration for the optimization service.
type ServiceConfig struct {
	// StrategyPath points to the strategy YAML document.
	StrategyPath string `yaml:"strategy_path" validate:"required"`

	// CycleInterval is the pause between optimization cycles.
	CycleInterval Duration `yaml:"cycle_interval"`

	// DatabasePath is the SQLite database holding plant data and results.
	DatabasePath string `yaml:"database_path" validate:"required"`

	// DataWindow bounds how old a plant data sample may be before a
	// variable counts as missing. Zero disables the bound.
	DataWindow Duration `yaml:"data_window"`

	// Artifacts configures the model artifact store.
	Artifacts ArtifactsConfig `yaml:"artifacts" validate:"required"`

	// API configures the read-only HTTP API.
	API APIConfig `yaml:"api"`

	// Guardrails configures recommendation policy checks.
	Guardrails GuardrailsConfig `yaml:"guardrails"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ArtifactsConfig selects and configures the artifact store backend.
type ArtifactsConfig struct {
	// Backend is the artifact source (fs, sftp).
	Backend string `yaml:"backend" validate:"required,oneof=fs sftp"`

	// Root is the local artifact directory for the fs backend.
	Root string `yaml:"root" validate:"required_if=Backend fs"`

	// SFTP configures the sftp backend.
	SFTP artifacts.SFTPConfig `yaml:"sftp"`

	// CacheSize is the LRU artifact cache capacity. Zero disables caching.
	CacheSize int `yaml:"cache_size" validate:"min=0"`

	// Breaker enables the circuit breaker around remote fetches.
	Breaker bool `yaml:"breaker"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	// Enabled starts the HTTP listener when true.
	Enabled bool `yaml:"enabled"`

	// Listen is the listen address, e.g. ":8080".
	Listen string `yaml:"listen" validate:"required_if=Enabled true"`
}

// GuardrailsConfig configures policy evaluation of recommendations.
type GuardrailsConfig struct {
	// Enabled evaluates recommendations against policies when true.
	Enabled bool `yaml:"enabled"`

	// PolicyDir holds additional Rego policies loaded next to the
	// built-in guardrails.
	PolicyDir string `yaml:"policy_dir"`
}

// LoadServiceConfig reads, decodes, and validates the service configuration
// at path, applying defaults for optional fields.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service config: %w", err)
	}
	var cfg ServiceConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse service config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("service config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *ServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.CycleInterval.Std() < time.Second {
		return fmt.Errorf("cycle_interval must be at least 1s, got %s", c.CycleInterval.Std())
	}
	return nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.CycleInterval == 0 {
		c.CycleInterval = Duration(time.Minute)
	}
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "fs"
	}
	if c.API.Enabled && c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	c.Telemetry.ApplyDefaults()
}
