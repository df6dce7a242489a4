// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the spawn-handshake
// test suite.
package testutil

import (
	"os"
	"testing"
)

// SocketDir creates a temporary directory suitable for the command
// sockets SmartSpawner's preloader protocol dials (§6).
//
// Unix domain sockets have a 108-byte path limit (sun_path in
// sockaddr_un). go test's t.TempDir() nests deeply enough under
// $TMPDIR on some CI runners to blow past that limit, which breaks
// only the preloader-socket tests and nothing else. This creates a
// short-named directory directly in /tmp instead.
//
// The directory is automatically removed when the test completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "spawningkit-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}
