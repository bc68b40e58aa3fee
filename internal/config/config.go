package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/cmdbus/internal/instance"
	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// DefaultRedisURL is used when neither cmdbus.yml nor REDIS_URL names a server.
const DefaultRedisURL = "redis://localhost:6379"

// BusConfig specifies partitioning and failure handling of the command bus
type BusConfig struct {
	Partitions int    `yaml:"partitions,omitempty"`  // Publisher partitions (default: 4)
	BufferSize int    `yaml:"buffer_size,omitempty"` // Stream buffer per partition (default: 1024)
	Rollback   string `yaml:"rollback,omitempty"`    // "unexpected" (default) or "any"
}

// ReporterConfig bounds in-flight result deliveries to workers+queue_size
type ReporterConfig struct {
	Workers   int `yaml:"workers,omitempty"`    // Default: 8
	QueueSize int `yaml:"queue_size,omitempty"` // Default: 4096
}

// PendingCreatesConfig bounds the per-partition tracker of retried not-found commands
type PendingCreatesConfig struct {
	Capacity int           `yaml:"capacity,omitempty"` // Default: 10000
	TTL      time.Duration `yaml:"ttl,omitempty"`      // Default: 5m
}

// ResultsConfig controls how long command outcomes stay readable in Redis
type ResultsConfig struct {
	TTL time.Duration `yaml:"ttl,omitempty"` // Default: 24h
}

// CmdbusConfig represents the top-level cmdbus.yml configuration
type CmdbusConfig struct {
	Version        string                `yaml:"version"`
	Instance       string                `yaml:"instance,omitempty"`
	RedisURL       string                `yaml:"redis_url,omitempty"`
	LogMode        string                `yaml:"log_mode,omitempty"`    // "production" (default) or "development"
	HealthAddr     string                `yaml:"health_addr,omitempty"` // Default: ":8080"
	Bus            *BusConfig            `yaml:"bus,omitempty"`
	Reporter       *ReporterConfig       `yaml:"reporter,omitempty"`
	PendingCreates *PendingCreatesConfig `yaml:"pending_creates,omitempty"`
	Results        *ResultsConfig        `yaml:"results,omitempty"`
}

// EnvOverrides are environment variables that take precedence over cmdbus.yml.
// Unset variables leave the file value in place.
type EnvOverrides struct {
	Instance   string `env:"CMDBUS_INSTANCE_NAME"`
	RedisURL   string `env:"REDIS_URL"`
	Partitions int    `env:"CMDBUS_PARTITIONS"`
	LogMode    string `env:"CMDBUS_LOG_MODE"`
	HealthAddr string `env:"CMDBUS_HEALTH_ADDR"`
}

// Default returns a configuration with every default applied.
func Default() *CmdbusConfig {
	c := &CmdbusConfig{Version: "1.0"}
	c.applyDefaults()
	return c
}

func (c *CmdbusConfig) applyDefaults() {
	if c.Instance == "" {
		c.Instance = "default"
	}
	if c.RedisURL == "" {
		c.RedisURL = DefaultRedisURL
	}
	if c.LogMode == "" {
		c.LogMode = "production"
	}
	if c.HealthAddr == "" {
		c.HealthAddr = ":8080"
	}

	defaults := commandbus.DefaultConfig()

	if c.Bus == nil {
		c.Bus = &BusConfig{}
	}
	if c.Bus.Partitions == 0 {
		c.Bus.Partitions = defaults.Partitions
	}
	if c.Bus.BufferSize == 0 {
		c.Bus.BufferSize = defaults.BufferSize
	}
	if c.Bus.Rollback == "" {
		c.Bus.Rollback = "unexpected"
	}

	if c.Reporter == nil {
		c.Reporter = &ReporterConfig{}
	}
	if c.Reporter.Workers == 0 {
		c.Reporter.Workers = defaults.ReporterWorkers
	}
	if c.Reporter.QueueSize == 0 {
		c.Reporter.QueueSize = defaults.ReporterQueueSize
	}

	if c.PendingCreates == nil {
		c.PendingCreates = &PendingCreatesConfig{}
	}
	if c.PendingCreates.Capacity == 0 {
		c.PendingCreates.Capacity = defaults.PendingCreateCapacity
	}
	if c.PendingCreates.TTL == 0 {
		c.PendingCreates.TTL = defaults.PendingCreateTTL
	}

	if c.Results == nil {
		c.Results = &ResultsConfig{}
	}
	if c.Results.TTL == 0 {
		c.Results.TTL = 24 * time.Hour
	}
}

// Validate applies defaults and performs strict validation on the configuration
func (c *CmdbusConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	c.applyDefaults()

	if err := instance.ValidateName(c.Instance); err != nil {
		return err
	}
	if c.LogMode != "production" && c.LogMode != "development" {
		return fmt.Errorf("invalid log_mode: %s (must be 'production' or 'development')", c.LogMode)
	}
	if c.Bus.Partitions < 1 {
		return fmt.Errorf("bus.partitions must be >= 1, got %d", c.Bus.Partitions)
	}
	if c.Bus.BufferSize < 1 {
		return fmt.Errorf("bus.buffer_size must be >= 1, got %d", c.Bus.BufferSize)
	}
	if _, err := commandbus.PolicyByName(c.Bus.Rollback); err != nil {
		return fmt.Errorf("bus.rollback: %w", err)
	}
	if c.Reporter.Workers < 1 {
		return fmt.Errorf("reporter.workers must be >= 1, got %d", c.Reporter.Workers)
	}
	if c.Reporter.QueueSize < 1 {
		return fmt.Errorf("reporter.queue_size must be >= 1, got %d", c.Reporter.QueueSize)
	}
	if c.PendingCreates.Capacity < 0 {
		return fmt.Errorf("pending_creates.capacity must be >= 0, got %d", c.PendingCreates.Capacity)
	}
	if c.PendingCreates.TTL < 0 {
		return fmt.Errorf("pending_creates.ttl must be >= 0, got %s", c.PendingCreates.TTL)
	}
	if c.Results.TTL < 0 {
		return fmt.Errorf("results.ttl must be >= 0, got %s", c.Results.TTL)
	}

	return nil
}

// ApplyEnv overrides file values with the environment variables that are set.
func (c *CmdbusConfig) ApplyEnv() error {
	var overrides EnvOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if overrides.Instance != "" {
		c.Instance = overrides.Instance
	}
	if overrides.RedisURL != "" {
		c.RedisURL = overrides.RedisURL
	}
	if overrides.LogMode != "" {
		c.LogMode = overrides.LogMode
	}
	if overrides.HealthAddr != "" {
		c.HealthAddr = overrides.HealthAddr
	}
	if overrides.Partitions != 0 {
		if c.Bus == nil {
			c.Bus = &BusConfig{}
		}
		c.Bus.Partitions = overrides.Partitions
	}
	return nil
}

// BusSettings translates the configuration into commandbus.Config.
// Call after Validate.
func (c *CmdbusConfig) BusSettings() commandbus.Config {
	return commandbus.Config{
		Partitions:            c.Bus.Partitions,
		BufferSize:            c.Bus.BufferSize,
		ReporterWorkers:       c.Reporter.Workers,
		ReporterQueueSize:     c.Reporter.QueueSize,
		PendingCreateCapacity: c.PendingCreates.Capacity,
		PendingCreateTTL:      c.PendingCreates.TTL,
	}
}

// RollbackPolicy returns the configured rollback configuration.
func (c *CmdbusConfig) RollbackPolicy() (commandbus.RollbackConfiguration, error) {
	return commandbus.PolicyByName(c.Bus.Rollback)
}

// Load reads cmdbus.yml from the specified path, applies environment overrides
// and validates the result. An empty path starts from the defaults.
func Load(path string) (*CmdbusConfig, error) {
	config := CmdbusConfig{Version: "1.0"}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		config = CmdbusConfig{}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
