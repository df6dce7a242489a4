// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the spawnkit-supervisor
// demo binary.
//
// Configuration is loaded from a single file specified by:
//   - SPAWNKIT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the configuration for cmd/spawnkit-supervisor, the demo
// binary that drives DirectSpawner/SmartSpawner against
// SPEC_FULL.md §3's pool/history/templates sections.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Pool configures default spawn behavior.
	Pool PoolConfig `yaml:"pool"`

	// History configures the spawn-history ledger.
	History HistoryConfig `yaml:"history"`

	// Templates locates the Markdown fragments rendered into
	// spawn-error HTML artifacts.
	Templates TemplatesConfig `yaml:"templates"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Pool      *PoolConfig      `yaml:"pool,omitempty"`
	History   *HistoryConfig   `yaml:"history,omitempty"`
	Templates *TemplatesConfig `yaml:"templates,omitempty"`
}

// PoolConfig configures default spawn behavior shared by every spawn
// strategy (the outer pool's own eviction/sizing policy is out of
// scope per spec §1 Non-goals; these are just the defaults a demo
// driver applies when a caller doesn't override them).
type PoolConfig struct {
	// DefaultStartTimeoutMS bounds how long a single spawn attempt
	// may take before HandshakePerform reports a timeout failure.
	DefaultStartTimeoutMS int64 `yaml:"default_start_timeout_ms"`

	// DefaultUserSwitching controls whether envsetup.Args.User/Group
	// are populated from the application's configured account by
	// default, or left empty (spawn as the supervisor's own user).
	DefaultUserSwitching bool `yaml:"default_user_switching"`
}

// StartTimeout returns Pool.DefaultStartTimeoutMS as a time.Duration.
func (p PoolConfig) StartTimeout() time.Duration {
	return time.Duration(p.DefaultStartTimeoutMS) * time.Millisecond
}

// HistoryConfig configures the spawn-history ledger (history package).
type HistoryConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// PoolSize bounds how many pooled connections history.Store opens.
	PoolSize int `yaml:"pool_size"`
}

// TemplatesConfig locates the Markdown template fragments spawnerror.Renderer
// expands into HTML problem/solution descriptions.
type TemplatesConfig struct {
	ProblemDescription  string `yaml:"problem_description"`
	SolutionDescription string `yaml:"solution_description"`
}

// Default returns a Config with development defaults.
// These exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Pool: PoolConfig{
			DefaultStartTimeoutMS: 10000,
			DefaultUserSwitching:  true,
		},
		History: HistoryConfig{
			Path:     "${SPAWNKIT_STATE_DIR:-/var/lib/spawnkit}/history.db",
			PoolSize: 4,
		},
		Templates: TemplatesConfig{
			ProblemDescription:  "/etc/spawnkit/templates/problem.md",
			SolutionDescription: "/etc/spawnkit/templates/solution.md",
		},
	}
}

// Load loads configuration from the SPAWNKIT_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if SPAWNKIT_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("SPAWNKIT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SPAWNKIT_CONFIG environment variable not set; " +
			"set it to the path of your spawnkit.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: user switching is mandatory, never
		// implicitly skipped the way a development sandbox might.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Pool: &PoolConfig{DefaultUserSwitching: true},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Pool != nil {
		if overrides.Pool.DefaultStartTimeoutMS != 0 {
			c.Pool.DefaultStartTimeoutMS = overrides.Pool.DefaultStartTimeoutMS
		}
		c.Pool.DefaultUserSwitching = overrides.Pool.DefaultUserSwitching
	}

	if overrides.History != nil {
		if overrides.History.Path != "" {
			c.History.Path = overrides.History.Path
		}
		if overrides.History.PoolSize != 0 {
			c.History.PoolSize = overrides.History.PoolSize
		}
	}

	if overrides.Templates != nil {
		if overrides.Templates.ProblemDescription != "" {
			c.Templates.ProblemDescription = overrides.Templates.ProblemDescription
		}
		if overrides.Templates.SolutionDescription != "" {
			c.Templates.SolutionDescription = overrides.Templates.SolutionDescription
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.History.Path = expandVars(c.History.Path, vars)
	c.Templates.ProblemDescription = expandVars(c.Templates.ProblemDescription, vars)
	c.Templates.SolutionDescription = expandVars(c.Templates.SolutionDescription, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Pool.DefaultStartTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("pool.default_start_timeout_ms must be positive"))
	}

	if c.History.Path == "" {
		errs = append(errs, fmt.Errorf("history.path is required"))
	}
	if c.History.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("history.pool_size must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureHistoryDir creates the directory containing History.Path if it
// doesn't already exist.
func (c *Config) EnsureHistoryDir() error {
	dir := filepath.Dir(c.History.Path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
