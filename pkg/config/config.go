// Package config holds the engine tunables shared by the binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EngineConfig configures the execution coordinator and its collaborators.
type EngineConfig struct {
	WorkerPoolSize       int           `yaml:"worker_pool_size"       validate:"gte=1"`
	MaxQueuedExecutions  int           `yaml:"max_queued_executions"  validate:"gte=0"`
	DefaultActionTimeout time.Duration `yaml:"default_action_timeout" validate:"gt=0"`
	ExecutionTimeout     time.Duration `yaml:"execution_timeout"      validate:"gt=0,gtefield=DefaultActionTimeout"`
	RecipientCacheTTL    time.Duration `yaml:"recipient_cache_ttl"    validate:"gte=0"`
	ScheduleResync       time.Duration `yaml:"schedule_resync"        validate:"gte=0"`
}

// Default returns the configuration used when nothing is overridden.
func Default() EngineConfig {
	return EngineConfig{
		WorkerPoolSize:       16,
		MaxQueuedExecutions:  64,
		DefaultActionTimeout: 30 * time.Second,
		ExecutionTimeout:     5 * time.Minute,
		RecipientCacheTTL:    time.Minute,
		ScheduleResync:       30 * time.Second,
	}
}

var ErrInvalidConfig = errors.New("invalid engine config")

// Validate checks the configuration bounds.
func (c EngineConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	return nil
}

// LoadFile reads a YAML file over the defaults. Keys absent from the file
// keep their default value.
func LoadFile(path string) (EngineConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return cfg, cfg.Validate()
}
