// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envsetup

import "os/exec"

// Capabilities describes what CPU-jail features are available on the
// current host, so a supervisor can decide up front whether a
// requested CPUJail can actually be honored rather than discovering
// it only after the child has already forked.
type Capabilities struct {
	SystemdRunAvailable    bool
	SystemdUserScopesWork  bool
}

// DetectCapabilities probes systemd-run availability and whether this
// user can actually create scopes (some container/CI hosts have the
// binary but lack a working user session bus).
func DetectCapabilities() Capabilities {
	var caps Capabilities

	if _, err := exec.LookPath("systemd-run"); err != nil {
		return caps
	}
	caps.SystemdRunAvailable = true

	cmd := exec.Command("systemd-run", "--user", "--scope", "--", "true")
	if err := cmd.Run(); err == nil {
		caps.SystemdUserScopesWork = true
	}
	return caps
}
