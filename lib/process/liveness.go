// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// IsAlive reports whether pid names a running, non-zombie OS process.
// Grounded on the original C++ source's osProcessExists/isZombie pair:
// a zombie still answers kill(pid, 0) successfully, so a liveness
// probe that stops there would misreport a reaped-but-not-yet-waited
// child as alive.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil {
		return false
	}
	zombie, err := isZombie(pid)
	if err != nil {
		// /proc unreadable (permissions, or the process just exited):
		// fall back to the kill(pid, 0) result.
		return true
	}
	return !zombie
}

// UID reports the real UID a running process is executing as, read
// from /proc/<pid>/status. Used to verify a forked or preloader-
// reported PID actually dropped privileges to the user it was
// configured with, rather than trusting the fork succeeded silently.
func UID(pid int) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if after, ok := strings.CutPrefix(line, "Uid:"); ok {
			fields := strings.Fields(after)
			if len(fields) == 0 {
				break
			}
			uid, err := strconv.Atoi(fields[0])
			if err != nil {
				return 0, fmt.Errorf("process: parsing uid from /proc/%d/status: %w", pid, err)
			}
			return uid, nil
		}
	}
	return 0, fmt.Errorf("process: no Uid line in /proc/%d/status", pid)
}

// isZombie reports whether pid is in the "Z (zombie)" state per
// /proc/<pid>/status.
func isZombie(pid int) (bool, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if after, ok := strings.CutPrefix(line, "State:"); ok {
			fields := strings.Fields(after)
			if len(fields) > 0 && fields[0] == "Z" {
				return true, nil
			}
			return false, nil
		}
	}
	return false, nil
}
