// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Pool.DefaultStartTimeoutMS != 10000 {
		t.Errorf("expected default_start_timeout_ms=10000, got %d", cfg.Pool.DefaultStartTimeoutMS)
	}

	if !cfg.Pool.DefaultUserSwitching {
		t.Error("expected default_user_switching=true")
	}

	if cfg.History.PoolSize != 4 {
		t.Errorf("expected history.pool_size=4, got %d", cfg.History.PoolSize)
	}
}

func TestLoad_RequiresSpawnkitConfig(t *testing.T) {
	origConfig := os.Getenv("SPAWNKIT_CONFIG")
	defer os.Setenv("SPAWNKIT_CONFIG", origConfig)

	os.Unsetenv("SPAWNKIT_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SPAWNKIT_CONFIG not set, got nil")
	}

	expectedMsg := "SPAWNKIT_CONFIG environment variable not set"
	if err.Error()[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithSpawnkitConfig(t *testing.T) {
	origConfig := os.Getenv("SPAWNKIT_CONFIG")
	defer os.Setenv("SPAWNKIT_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "spawnkit.yaml")

	configContent := `
environment: staging
pool:
  default_start_timeout_ms: 5000
history:
  path: /test/history.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("SPAWNKIT_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Pool.DefaultStartTimeoutMS != 5000 {
		t.Errorf("expected default_start_timeout_ms=5000, got %d", cfg.Pool.DefaultStartTimeoutMS)
	}

	if cfg.History.Path != "/test/history.db" {
		t.Errorf("expected history.path=/test/history.db, got %s", cfg.History.Path)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "spawnkit.yaml")

	configContent := `
environment: staging

pool:
  default_start_timeout_ms: 15000
  default_user_switching: false

history:
  path: /custom/history.db
  pool_size: 8

templates:
  problem_description: /custom/problem.md
  solution_description: /custom/solution.md
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Pool.DefaultStartTimeoutMS != 15000 {
		t.Errorf("expected default_start_timeout_ms=15000, got %d", cfg.Pool.DefaultStartTimeoutMS)
	}

	if cfg.Pool.DefaultUserSwitching {
		t.Error("expected default_user_switching=false")
	}

	if cfg.History.Path != "/custom/history.db" {
		t.Errorf("expected history.path=/custom/history.db, got %s", cfg.History.Path)
	}

	if cfg.History.PoolSize != 8 {
		t.Errorf("expected history.pool_size=8, got %d", cfg.History.PoolSize)
	}

	if cfg.Templates.ProblemDescription != "/custom/problem.md" {
		t.Errorf("expected templates.problem_description=/custom/problem.md, got %s", cfg.Templates.ProblemDescription)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "spawnkit.yaml")

	configContent := `
environment: production

pool:
  default_user_switching: false

production:
  pool:
    default_user_switching: true
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if !cfg.Pool.DefaultUserSwitching {
		t.Error("expected default_user_switching=true from production override")
	}
}

func TestEnvironmentOverrides_ProductionImpliedDefault(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "spawnkit.yaml")

	if err := os.WriteFile(configPath, []byte("environment: production\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if !cfg.Pool.DefaultUserSwitching {
		t.Error("expected production's implied override to force default_user_switching=true")
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	origEnv := os.Getenv("SPAWNKIT_ENVIRONMENT")
	defer os.Setenv("SPAWNKIT_ENVIRONMENT", origEnv)
	os.Setenv("SPAWNKIT_ENVIRONMENT", "staging")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "spawnkit.yaml")

	configContent := `
environment: development
history:
  path: /file/history.db
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s (env vars should not override)", cfg.Environment)
	}

	if cfg.History.Path != "/file/history.db" {
		t.Errorf("expected history.path=/file/history.db from file, got %s (env vars should not override)", cfg.History.Path)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/spawnkit",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/spawnkit",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "non-positive timeout",
			modify: func(c *Config) {
				c.Pool.DefaultStartTimeoutMS = 0
			},
			wantErr: true,
		},
		{
			name: "empty history path",
			modify: func(c *Config) {
				c.History.Path = ""
			},
			wantErr: true,
		},
		{
			name: "non-positive pool size",
			modify: func(c *Config) {
				c.History.PoolSize = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureHistoryDir(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.History.Path = filepath.Join(tmpDir, "nested", "history.db")

	if err := cfg.EnsureHistoryDir(); err != nil {
		t.Fatalf("EnsureHistoryDir failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "nested"))
	if err != nil {
		t.Fatalf("nested dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("expected a directory")
	}
}
