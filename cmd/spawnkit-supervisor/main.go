// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command spawnkit-supervisor is a demo driver binary: it loads a
// supervisor config (SPEC_FULL.md §3) and a single application spawn
// config, runs one spawn attempt through either DirectSpawner or
// SmartSpawner, records the outcome to the spawn-history ledger, and
// prints a human-readable summary. It is not the outer pool spec.md
// §1 names out of scope — it exists only to give the library's own
// components a runnable entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/phusion-spawning/spawningkit/handshake"
	"github.com/phusion-spawning/spawningkit/history"
	"github.com/phusion-spawning/spawningkit/lib/clock"
	"github.com/phusion-spawning/spawningkit/lib/config"
	"github.com/phusion-spawning/spawningkit/spawner"
	"github.com/phusion-spawning/spawningkit/spawnerror"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		appSpecPath string
		workDir     string
		smart       bool
	)
	flags := pflag.NewFlagSet("spawnkit-supervisor", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", os.Getenv("SPAWNKIT_CONFIG"), "supervisor config file (YAML)")
	flags.StringVar(&appSpecPath, "app", "", "application spawn config file (JSON, comments allowed)")
	flags.StringVar(&workDir, "work-dir", "/tmp/spawnkit", "base directory for per-spawn work directories")
	flags.BoolVar(&smart, "smart", false, "spawn through a preloader instead of directly")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "spawnkit-supervisor: --config or SPAWNKIT_CONFIG is required")
		return 2
	}
	if appSpecPath == "" {
		fmt.Fprintln(os.Stderr, "spawnkit-supervisor: --app is required")
		return 2
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		logger.Error("loading supervisor config", "error", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid supervisor config", "error", err)
		return 1
	}
	if err := cfg.EnsureHistoryDir(); err != nil {
		logger.Error("preparing history directory", "error", err)
		return 1
	}

	appConfig, err := loadAppConfig(appSpecPath, cfg.Pool)
	if err != nil {
		logger.Error("loading app config", "error", err)
		return 1
	}

	store, err := history.Open(cfg.History.Path, cfg.History.PoolSize, logger)
	if err != nil {
		logger.Error("opening history store", "error", err)
		return 1
	}
	defer store.Close()

	renderer := spawnerror.NewRenderer()
	problemTemplate := readTemplateOrEmpty(cfg.Templates.ProblemDescription, logger)
	solutionTemplate := readTemplateOrEmpty(cfg.Templates.SolutionDescription, logger)

	clk := clock.Real()
	startedAt := time.Now()

	var result *handshake.Result
	var spawnErr *spawnerror.Error
	if smart {
		sp := spawner.NewSmartSpawner(clk, logger)
		defer sp.Stop()
		result, spawnErr = sp.Spawn(appConfig, workDir, cfg.Pool.StartTimeout())
	} else {
		dp := spawner.NewDirectSpawner(clk)
		result, spawnErr = dp.Spawn(appConfig, workDir, cfg.Pool.StartTimeout())
	}

	elapsed := time.Since(startedAt)
	entry := history.Entry{
		StartedAt:    startedAt,
		AppRoot:      appConfig.AppRoot,
		ConfigDigest: "",
		PID:          0,
	}

	if spawnErr != nil {
		if renderErr := renderer.RenderError(spawnErr, problemTemplate, solutionTemplate); renderErr != nil {
			logger.Warn("rendering error descriptions", "error", renderErr)
		}
		entry.Outcome = history.OutcomeFailure
		entry.Snapshot = history.NewSnapshot(spawnErr.JourneySnapshot, spawnErr)
		if recErr := store.Record(context.Background(), entry); recErr != nil {
			logger.Warn("recording history entry", "error", recErr)
		}
		fmt.Fprintln(os.Stderr, spawnerror.Summary(spawnErr, elapsed))
		return 1
	}

	entry.PID = result.PID
	entry.Outcome = history.OutcomeSuccess
	if recErr := store.Record(context.Background(), entry); recErr != nil {
		logger.Warn("recording history entry", "error", recErr)
	}

	fmt.Printf("spawned pid=%d in %s\n", result.PID, elapsed.Round(time.Millisecond))
	for _, socket := range result.Sockets {
		fmt.Printf("  socket %s: %s (%s, concurrency=%d)\n", socket.Name, socket.Address, socket.Protocol, socket.Concurrency)
	}
	return 0
}

// loadAppConfig reads a single application's spawn config, written as
// JSON with optional comments (jsonc), applying the supervisor's pool
// defaults where the app didn't set its own timeout.
func loadAppConfig(path string, pool config.PoolConfig) (handshake.SpawnConfig, error) {
	var appConfig handshake.SpawnConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return appConfig, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &appConfig); err != nil {
		return appConfig, fmt.Errorf("parsing %s: %w", path, err)
	}
	if appConfig.StartTimeout == 0 {
		appConfig.StartTimeout = pool.StartTimeout()
	}
	return appConfig, nil
}

// readTemplateOrEmpty reads a Markdown template file, logging and
// returning "" on failure rather than aborting the whole spawn attempt
// over a missing template pack.
func readTemplateOrEmpty(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("reading error-description template", "path", path, "error", err)
		return ""
	}
	return string(data)
}
