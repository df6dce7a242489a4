// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"time"
)

// ResourceLimits are the ulimit-shaped constraints applied by the
// envsetupper before the application takes over (§4.6 step 3).
type ResourceLimits struct {
	// FileDescriptors is the soft/hard RLIMIT_NOFILE value. Zero means
	// "leave unchanged."
	FileDescriptors uint64 `json:"file_descriptor_ulimit,omitempty"`

	// CPUJail, when non-empty, is a comma-separated list of key=value
	// limits (mem, cpu, tasks; see envsetup.ParseCPUJail) that the
	// envsetupper applies through systemd-run before switching users.
	CPUJail string `json:"cpu_jail,omitempty"`
}

// SpawnConfig is the immutable input describing one application to
// spawn (§3). It is serialized verbatim into the work dir's args.json
// by Prepare and read back by the envsetupper.
type SpawnConfig struct {
	AppRoot         string            `json:"app_root"`
	AppType         string            `json:"app_type"`
	AppEnv          string            `json:"app_env"`
	IntegrationMode string            `json:"integration_mode"`

	User  string `json:"user,omitempty"`
	Group string `json:"group,omitempty"`

	Resources ResourceLimits `json:"resources"`

	StartTimeout time.Duration `json:"start_timeout_ns"`

	EnvVars map[string]string `json:"env_vars,omitempty"`
	BaseURIs map[string]string `json:"base_uris,omitempty"`

	// NodeLibDir and ExpectedStartPort feed two of the default env vars
	// the envsetupper installs in --after mode (§4.6 step 5): NODE_PATH
	// and PORT. Both are optional; a zero ExpectedStartPort means PORT
	// is left unset.
	NodeLibDir        string `json:"node_libdir,omitempty"`
	ExpectedStartPort int    `json:"expected_start_port,omitempty"`

	StartCommand string `json:"start_command"`

	// WrapperCommand, if non-empty, names a wrapper program invoked
	// before StartCommand (§3: "optional wrapper program").
	WrapperCommand []string `json:"wrapper_command,omitempty"`

	// LoginShell is written to args.json for the envsetupper, which
	// does not act on it: spawnkit-envsetup --before always execs the
	// --after stage directly, with no login shell in between.
	LoginShell bool `json:"login_shell"`

	// PreloaderCommand is set only for smart-spawn configs (§3:
	// "preloader command (smart only)").
	PreloaderCommand []string `json:"preloader_command,omitempty"`
}

// UsingWrapper reports whether this config's journey should include
// the wrapper steps.
func (c SpawnConfig) UsingWrapper() bool {
	return len(c.WrapperCommand) > 0
}

// ResolveExpectedUID determines the UID the spawned process should be
// running as once the envsetupper's user switch (§4.6 step 2) has had
// a chance to run, so Perform can verify the forked or preloader-
// reported PID actually ended up as the right user (§4.8 "UID
// verification"). When User is empty no switch happens, so the
// process keeps this supervisor's own effective UID.
func (c SpawnConfig) ResolveExpectedUID() (int, error) {
	if c.User == "" {
		return os.Geteuid(), nil
	}
	u, err := user.Lookup(c.User)
	if err != nil {
		return 0, fmt.Errorf("handshake: looking up user %q: %w", c.User, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, fmt.Errorf("handshake: user %q has non-numeric uid %q", c.User, u.Uid)
	}
	return uid, nil
}
