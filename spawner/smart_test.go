// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawner

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phusion-spawning/spawningkit/handshake"
	"github.com/phusion-spawning/spawningkit/lib/clock"
	"github.com/phusion-spawning/spawningkit/lib/testutil"
)

func TestReadBoundedLineWithinLimit(t *testing.T) {
	line, err := readBoundedLine(strings.NewReader(`{"result":"ok"}`+"\n"), maxCommandLineLength)
	if err != nil {
		t.Fatalf("readBoundedLine: %v", err)
	}
	if line != `{"result":"ok"}`+"\n" {
		t.Errorf("line = %q", line)
	}
}

func TestReadBoundedLineAtExactLimit(t *testing.T) {
	payload := strings.Repeat("a", maxCommandLineLength-1) + "\n"
	line, err := readBoundedLine(strings.NewReader(payload), maxCommandLineLength)
	if err != nil {
		t.Fatalf("readBoundedLine: %v", err)
	}
	if len(line) != maxCommandLineLength {
		t.Errorf("len(line) = %d, want %d", len(line), maxCommandLineLength)
	}
}

func TestReadBoundedLineExceedsLimit(t *testing.T) {
	// One byte over the cap, no newline anywhere: a naive
	// bufio.Reader.ReadString would keep refilling past the hinted
	// buffer size looking for a delimiter that never comes.
	payload := strings.Repeat("a", maxCommandLineLength+1)
	_, err := readBoundedLine(strings.NewReader(payload), maxCommandLineLength)
	if err != errResponseLineTooLong {
		t.Fatalf("err = %v, want errResponseLineTooLong", err)
	}
}

func TestUnlinkUnixSocketRemovesFile(t *testing.T) {
	dir := testutil.SocketDir(t)
	path := filepath.Join(dir, testutil.UniqueID("sock"))
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	unlinkUnixSocket(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed, stat err = %v", path, err)
	}
}

func TestUnlinkUnixSocketIgnoresNonUnixAddress(t *testing.T) {
	// Must not panic or attempt a filesystem remove on a scheme-
	// qualified address; there is nothing to unlink.
	unlinkUnixSocket("tcp://127.0.0.1:0")
	unlinkUnixSocket("")
}

// TestSmartSpawnerRejectsOversizedPreloaderResponse drives
// spawnThroughPreloader against a fake preloader listening on a real
// Unix socket that replies with an unterminated line past
// maxCommandLineLength, confirming the 10 KiB cap is enforced end to
// end rather than just at the readBoundedLine unit level.
func TestSmartSpawnerRejectsOversizedPreloaderResponse(t *testing.T) {
	dir := testutil.SocketDir(t)
	sockPath := filepath.Join(dir, testutil.UniqueID("preloader")+".sock")

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listening on %s: %v", sockPath, err)
	}
	defer listener.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte(strings.Repeat("x", maxCommandLineLength+1)))
		close(accepted)
	}()

	s := NewSmartSpawner(clock.Real(), nil)
	s.socketAddress = sockPath

	config := handshake.SpawnConfig{AppRoot: "/", StartCommand: "true"}
	_, spawnErr := s.spawnThroughPreloader(config, t.TempDir(), 2*time.Second)
	if spawnErr == nil {
		t.Fatal("expected a spawn error for an oversized, unterminated preloader response")
	}
	if !strings.Contains(spawnErr.Summary, "maximum size limit") {
		t.Errorf("Summary = %q, want it to mention the size limit", spawnErr.Summary)
	}
	testutil.RequireClosed(t, accepted, 2*time.Second, "fake preloader to finish writing its response")
}
