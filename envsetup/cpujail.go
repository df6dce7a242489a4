// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envsetup

import (
	"fmt"
	"os/exec"
	"strings"
)

// CPUJail describes a resource-constrained scope the envsetupper
// enters before the application takes over (§4.6 step 3). It is
// parsed from the config's CPUJail string, a comma-separated list of
// key=value limits, e.g. "mem=512M,cpu=150%,tasks=64".
type CPUJail struct {
	MemoryMax string
	CPUQuota  string
	TasksMax  int
}

// ParseCPUJail parses a CPUJail spec string. An empty spec yields a
// zero-value jail with no limits.
func ParseCPUJail(spec string) CPUJail {
	var jail CPUJail
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		switch key {
		case "mem":
			jail.MemoryMax = value
		case "cpu":
			jail.CPUQuota = value
		case "tasks":
			fmt.Sscanf(value, "%d", &jail.TasksMax)
		}
	}
	return jail
}

// HasLimits reports whether the jail imposes any constraint.
func (j CPUJail) HasLimits() bool {
	return j.MemoryMax != "" || j.CPUQuota != "" || j.TasksMax > 0
}

// systemdRunAvailable reports whether systemd-run can be used to
// enter the jail.
func systemdRunAvailable() bool {
	_, err := exec.LookPath("systemd-run")
	return err == nil
}

// WrapCommand prefixes cmd with a systemd-run invocation that confines
// it to this jail's limits, returning cmd unchanged if systemd-run is
// unavailable or no limits are set. unitName identifies the resulting
// scope for later inspection (systemctl --user status <unitName>).
func (j CPUJail) WrapCommand(unitName string, cmd []string) []string {
	if !j.HasLimits() || !systemdRunAvailable() {
		return cmd
	}

	args := []string{"systemd-run", "--user", "--scope"}
	if unitName != "" {
		args = append(args, "--unit="+unitName)
	}
	if j.TasksMax > 0 {
		args = append(args, fmt.Sprintf("--property=TasksMax=%d", j.TasksMax))
	}
	if j.MemoryMax != "" {
		args = append(args, fmt.Sprintf("--property=MemoryMax=%s", j.MemoryMax))
	}
	if j.CPUQuota != "" {
		args = append(args, fmt.Sprintf("--property=CPUQuota=%s", j.CPUQuota))
	}
	args = append(args, "--")
	args = append(args, cmd...)
	return args
}
