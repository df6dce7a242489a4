// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides probes of other OS processes by PID:
//
//   - IsAlive reports whether a process is running, using kill(pid, 0)
//     and treating a zombie (per /proc/<pid>/status) as not running.
//   - UID reports the real UID a process runs as, read from
//     /proc/<pid>/status.
package process
