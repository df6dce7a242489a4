// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phusion-spawning/spawningkit/handshake"
)

// writeFakeEnvsetup installs a shell script standing in for
// spawnkit-envsetup: given a work dir and "--before", it writes
// response/properties.json and response/finish directly, as if the
// whole ulimit/user-switch/exec chain had already run and the
// application had reported one listening socket.
func writeFakeEnvsetup(t *testing.T, behavior string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-envsetup.sh")
	script := "#!/bin/sh\nworkdir=\"$1\"\n" + behavior
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDirectSpawnerSpawnSuccess(t *testing.T) {
	origPath := EnvsetupPath
	EnvsetupPath = writeFakeEnvsetup(t, `
mkdir -p "$workdir/response/steps"
cat > "$workdir/response/properties.json" <<'EOF'
{"sockets":[{"name":"main","address":"tcp://127.0.0.1:0","protocol":"http","concurrency":1}]}
EOF
touch "$workdir/response/finish"
exec sleep 5
`)
	defer func() { EnvsetupPath = origPath }()

	sp := NewDirectSpawner(nil)
	config := handshake.SpawnConfig{AppRoot: "/srv/app", StartCommand: "true"}
	result, spawnErr := sp.Spawn(config, t.TempDir(), 2*time.Second)
	if spawnErr != nil {
		t.Fatalf("Spawn returned an error: %s", spawnErr.Summary)
	}
	if len(result.Sockets) != 1 {
		t.Fatalf("Sockets = %d entries, want 1", len(result.Sockets))
	}
	if result.Sockets[0].Name != "main" {
		t.Errorf("socket name = %q, want main", result.Sockets[0].Name)
	}
	if result.PID == 0 {
		t.Error("Result.PID should be set to the forked envsetup process's pid")
	}
}

func TestDirectSpawnerSpawnPrematureExit(t *testing.T) {
	origPath := EnvsetupPath
	EnvsetupPath = writeFakeEnvsetup(t, `
mkdir -p "$workdir/response/error"
echo -n "INTERNAL_ERROR" > "$workdir/response/error/category"
echo -n "the fake child crashed on purpose" > "$workdir/response/error/summary"
exit 1
`)
	defer func() { EnvsetupPath = origPath }()

	sp := NewDirectSpawner(nil)
	config := handshake.SpawnConfig{AppRoot: "/srv/app", StartCommand: "true"}
	result, spawnErr := sp.Spawn(config, t.TempDir(), 2*time.Second)
	if spawnErr == nil {
		t.Fatal("expected a spawn error for a child that exits before writing finish")
	}
	if result != nil {
		t.Error("Result should be nil on failure")
	}
	if spawnErr.Summary != "the fake child crashed on purpose" {
		t.Errorf("Summary = %q, want the error/summary file's content", spawnErr.Summary)
	}
}
