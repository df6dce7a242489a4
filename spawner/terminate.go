// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawner

import (
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/phusion-spawning/spawningkit/lib/process"
)

// preloaderStopGracePeriod bounds how long terminate waits, after
// closing the preloader's stdin, before escalating to SIGKILL.
const preloaderStopGracePeriod = 5 * time.Second

// terminate implements the stopPreloader sequence (§6/§4.8: "close
// stdin, bounded waitpid, SIGKILL escalation"). A preloader blocks
// reading its stdin and treats EOF as the signal to shut itself down
// cleanly, so closing stdin — not a signal — is the graceful request;
// SIGKILL is reserved for a preloader that ignores it.
func terminate(pid int, stdin io.Closer) {
	if stdin != nil {
		_ = stdin.Close()
	}

	deadline := time.Now().Add(preloaderStopGracePeriod)
	for time.Now().Before(deadline) {
		if !process.IsAlive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	if process.IsAlive(pid) {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
}
