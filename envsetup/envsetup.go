// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envsetup implements the child-side environment setup chain
// run by the spawnkit-envsetup binary between fork and the
// application's own exec (§4.6 of the design this package
// implements): ulimits, user lookup, the CPU resource jail, the
// user/group switch, working-directory resolution, and environment
// variable installation, in that fixed order.
package envsetup

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Args is the subset of handshake.SpawnConfig the envsetupper reads
// from args.json. It is a separate, minimal type so this package does
// not depend on the handshake package's Session/Journey machinery —
// the envsetupper is a standalone binary that only ever sees the
// work directory on disk.
type Args struct {
	AppRoot           string             `json:"app_root"`
	AppType           string             `json:"app_type,omitempty"`
	AppEnv            string             `json:"app_env,omitempty"`
	User              string             `json:"user,omitempty"`
	Group             string             `json:"group,omitempty"`
	Resources         ArgsResourceLimits `json:"resources"`
	EnvVars           map[string]string  `json:"env_vars,omitempty"`
	BaseURIs          map[string]string  `json:"base_uris,omitempty"`
	StartCommand      string             `json:"start_command"`
	LoginShell        bool               `json:"login_shell,omitempty"`
	NodeLibDir        string             `json:"node_libdir,omitempty"`
	ExpectedStartPort int                `json:"expected_start_port,omitempty"`
}

// ArgsResourceLimits mirrors handshake.ResourceLimits' wire shape
// without importing the handshake package, keeping envsetup
// standalone-binary-friendly (it only ever reads args.json off disk).
type ArgsResourceLimits struct {
	FileDescriptors uint64 `json:"file_descriptor_ulimit,omitempty"`
	CPUJail         string `json:"cpu_jail,omitempty"`
}

// SetFileDescriptorLimit applies RLIMIT_NOFILE, matching the original
// setUlimits: a limit of zero means "leave unchanged."
func SetFileDescriptorLimit(n uint64) error {
	if n == 0 {
		return nil
	}
	limit := unix.Rlimit{Cur: n, Max: n}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return fmt.Errorf("envsetup: setrlimit(RLIMIT_NOFILE, %d): %w", n, err)
	}
	return nil
}

// CanSwitchUser reports whether a user switch was requested and this
// process has the privilege to perform it (§4.6: "only attempted
// when running as root").
func CanSwitchUser(a Args) bool {
	return a.User != "" && os.Geteuid() == 0
}

// LookupUser resolves the requested user (and optional group) to
// numeric IDs.
func LookupUser(a Args) (uid int, gid int, homeDir string, err error) {
	u, err := user.Lookup(a.User)
	if err != nil {
		return 0, 0, "", fmt.Errorf("envsetup: looking up user %q: %w", a.User, err)
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, "", fmt.Errorf("envsetup: user %q has non-numeric uid %q", a.User, u.Uid)
	}
	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, "", fmt.Errorf("envsetup: user %q has non-numeric gid %q", a.User, u.Gid)
	}

	if a.Group != "" {
		g, err := user.LookupGroup(a.Group)
		if err != nil {
			return 0, 0, "", fmt.Errorf("envsetup: looking up group %q: %w", a.Group, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return 0, 0, "", fmt.Errorf("envsetup: group %q has non-numeric gid %q", a.Group, g.Gid)
		}
	}

	return uid, gid, u.HomeDir, nil
}

// SwitchUser drops privileges to uid/gid, clearing supplementary
// groups first. Order matters: setgroups and Setgid must both happen
// before Setuid, or the process loses the privilege needed to perform
// them.
func SwitchUser(uid, gid int) error {
	if err := unix.Setgroups([]int{gid}); err != nil {
		return fmt.Errorf("envsetup: setgroups: %w", err)
	}
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return fmt.Errorf("envsetup: setresgid(%d): %w", gid, err)
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return fmt.Errorf("envsetup: setresuid(%d): %w", uid, err)
	}
	return nil
}

// VerifyUID re-checks that the real UID after SwitchUser matches
// what was requested, guarding against a silently-ignored privilege
// drop.
func VerifyUID(expected int) error {
	if actual := unix.Getuid(); actual != expected {
		return fmt.Errorf("envsetup: expected uid %d after switch, got %d", expected, actual)
	}
	return nil
}

// ValidateAncestorsAccessible walks every ancestor of appRoot, from the
// filesystem root down to appRoot itself, and stats each one (§4.6 step
// 4). It never substitutes a different directory for appRoot: its only
// job is to produce an early, correctly-attributed diagnostic before
// the unconditional chdir(appRoot) that follows it. An EACCES on one of
// the ancestors is blamed on that ancestor's parent, matching the
// original's reasoning that stat() on a path component fails with
// EACCES when the parent lacks search permission.
func ValidateAncestorsAccessible(appRoot string) error {
	for _, ancestor := range ancestorsOf(appRoot) {
		if _, err := os.Stat(ancestor); err != nil {
			var errno syscall.Errno
			if errors.As(err, &errno) && errno == syscall.EACCES {
				return fmt.Errorf("envsetup: directory %q is inaccessible because of a filesystem permission error", parentOf(ancestor))
			}
			return fmt.Errorf("envsetup: unable to stat %q: %w", ancestor, err)
		}
	}
	return nil
}

// ancestorsOf returns appRoot's ancestors in root-to-leaf order, ending
// with appRoot itself, matching the original's inferAllParentDirectories.
func ancestorsOf(appRoot string) []string {
	var reversed []string
	dir := appRoot
	for {
		reversed = append(reversed, dir)
		parent := parentOf(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	out := make([]string, len(reversed))
	for i, ancestor := range reversed {
		out[len(reversed)-1-i] = ancestor
	}
	return out
}

func parentOf(dir string) string {
	if dir == "" || dir == "/" {
		return "/"
	}
	i := len(dir) - 1
	for i > 0 && dir[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return dir[:i]
}

// Chdir changes the working directory, wrapping the syscall error
// with enough context to diagnose a misconfigured app root.
func Chdir(dir string) error {
	if err := syscall.Chdir(dir); err != nil {
		return fmt.Errorf("envsetup: chdir(%q): %w", dir, err)
	}
	return nil
}

// BuildEnvironment produces the final environment variable list for
// the application process (§4.6 step 5): the envsetupper's own
// inherited environment, then the default env vars every integration
// mode expects (PYTHONUNBUFFERED, NODE_PATH, the *_ENV family, PORT),
// then one SPAWNINGKIT_BASE_URI_<name> variable per base URI, then the
// config's explicit env_vars last so the user's own dictionary always
// wins.
func BuildEnvironment(inherited []string, a Args) []string {
	env := append([]string(nil), inherited...)

	env = append(env, "PYTHONUNBUFFERED=1")
	env = append(env, "NODE_PATH="+a.NodeLibDir)
	env = append(env,
		"RAILS_ENV="+a.AppEnv,
		"RACK_ENV="+a.AppEnv,
		"WSGI_ENV="+a.AppEnv,
		"NODE_ENV="+a.AppEnv,
		"PASSENGER_APP_ENV="+a.AppEnv,
	)
	if a.ExpectedStartPort != 0 {
		env = append(env, fmt.Sprintf("PORT=%d", a.ExpectedStartPort))
	}

	for name, uri := range a.BaseURIs {
		env = append(env, "SPAWNINGKIT_BASE_URI_"+name+"="+uri)
	}
	for key, value := range a.EnvVars {
		env = append(env, key+"="+value)
	}
	return env
}
