// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command spawnkit-envsetup is the child-side helper exec'd by a
// spawner between fork and the application's own exec. It is invoked
// twice per spawn — once with --before (ulimits, user switch, CPU
// jail, initial chdir) and once with --after (final chdir, env var
// installation). The --before stage execs the --after stage directly;
// no login shell runs in between, whatever args.json's login_shell
// says.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/phusion-spawning/spawningkit/envsetup"
	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/spawnerror"
)

func main() {
	var (
		before     bool
		after      bool
		dumpOnly   bool
		dumpWithEnv bool
	)
	flag.BoolVar(&before, "before", false, "run the before-shell half of env setup")
	flag.BoolVar(&after, "after", false, "run the after-shell half of env setup")
	flag.BoolVar(&dumpOnly, "dump-only", false, "print the parsed args.json and exit without setting anything up")
	flag.BoolVar(&dumpWithEnv, "dump-with-env", false, "like --dump-only, but also print the environment that would be installed")
	flag.Parse()

	// The work dir comes before the mode flags ("<work-dir> --before"),
	// and flag.Parse stops at the first positional argument, so parse
	// whatever follows each positional argument as flags too.
	var positional []string
	for rest := flag.Args(); len(rest) > 0; rest = flag.Args() {
		positional = append(positional, rest[0])
		flag.CommandLine.Parse(rest[1:])
	}

	if len(positional) != 1 || before == after {
		fmt.Fprintln(os.Stderr, "usage: spawnkit-envsetup <work-dir> (--before|--after) [--dump-only|--dump-with-env]")
		os.Exit(1)
	}
	workDir := positional[0]

	if dumpOnly || dumpWithEnv {
		if err := runDump(workDir, dumpWithEnv); err != nil {
			fmt.Fprintf(os.Stderr, "spawnkit-envsetup: %v\n", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(run(workDir, before))
}

// runDump implements the supplemented debug modes from SPEC_FULL.md
// §4: print what this invocation would do without doing it, so an
// operator can diagnose a bad args.json without burning a real spawn
// attempt.
func runDump(workDir string, withEnv bool) error {
	args, err := readArgs(workDir)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))

	if withEnv {
		env := envsetup.BuildEnvironment(os.Environ(), args)
		fmt.Println("--- environment that would be installed ---")
		for _, kv := range env {
			fmt.Println(kv)
		}
	}
	return nil
}

func readArgs(workDir string) (envsetup.Args, error) {
	var args envsetup.Args
	data, err := os.ReadFile(filepath.Join(workDir, "args.json"))
	if err != nil {
		return args, fmt.Errorf("reading args.json: %w", err)
	}
	if err := json.Unmarshal(data, &args); err != nil {
		return args, fmt.Errorf("parsing args.json: %w", err)
	}
	return args, nil
}

// run performs one half of the setup chain and execs into the next
// stage. It does not return on success — only a failure path returns
// an exit code.
func run(workDir string, before bool) int {
	recorder := envsetup.NewRecorder(workDir)
	step := journey.StepSubprocessSpawnEnvSetupperAfterShell
	if before {
		step = journey.StepSubprocessSpawnEnvSetupperBeforeShell
	}
	start := time.Now()
	recorder.InProgress(step)

	args, err := readArgs(workDir)
	if err != nil {
		return fail(recorder, step, start, err)
	}

	if before {
		if err := runBefore(recorder, args); err != nil {
			return fail(recorder, step, start, err)
		}
	} else {
		if err := runAfter(args); err != nil {
			return fail(recorder, step, start, err)
		}
	}

	recorder.Performed(step, start)
	return execNext(recorder, workDir, args, before)
}

func runBefore(recorder *envsetup.Recorder, args envsetup.Args) error {
	if err := envsetup.SetFileDescriptorLimit(args.Resources.FileDescriptors); err != nil {
		return err
	}

	if envsetup.CanSwitchUser(args) {
		uid, gid, _, err := envsetup.LookupUser(args)
		if err != nil {
			return err
		}
		if jail := envsetup.ParseCPUJail(args.Resources.CPUJail); jail.HasLimits() {
			// The jail re-executes this very binary inside a
			// systemd scope before any further setup happens, so
			// the rest of the chain runs confined from the start.
			wrapped := jail.WrapCommand("spawnkit-envsetup", os.Args)
			if len(wrapped) > 0 && wrapped[0] != os.Args[0] {
				return syscall.Exec(mustLookPath(wrapped[0]), wrapped, os.Environ())
			}
		}
		if err := envsetup.SwitchUser(uid, gid); err != nil {
			return err
		}
		if err := envsetup.VerifyUID(uid); err != nil {
			return err
		}
	}

	if err := envsetup.ValidateAncestorsAccessible(args.AppRoot); err != nil {
		return err
	}
	return envsetup.Chdir(args.AppRoot)
}

func runAfter(args envsetup.Args) error {
	if err := envsetup.ValidateAncestorsAccessible(args.AppRoot); err != nil {
		return err
	}
	return envsetup.Chdir(args.AppRoot)
}

func execNext(recorder *envsetup.Recorder, workDir string, args envsetup.Args, before bool) int {
	env := envsetup.BuildEnvironment(os.Environ(), args)

	var nextArgs []string
	var nextStep journey.Step
	if before {
		nextStep = journey.StepSubprocessSpawnEnvSetupperAfterShell
		self, err := os.Executable()
		if err != nil {
			return fail(recorder, nextStep, time.Now(), err)
		}
		nextArgs = []string{self, workDir, "--after"}
	} else {
		nextStep = journey.StepSubprocessAppLoadOrExec
		nextArgs = []string{"/bin/sh", "-c", args.StartCommand}
	}

	nextStart := time.Now()
	recorder.InProgress(nextStep)

	err := syscall.Exec(mustLookPath(nextArgs[0]), nextArgs, env)
	// Exec only returns on failure.
	recorder.Errored(nextStep, nextStart)
	recorder.RecordError(spawnerror.CategoryOperatingSystemError,
		fmt.Sprintf("unable to execute %q: %v", nextArgs[0], err))
	fmt.Fprintf(os.Stderr, "spawnkit-envsetup: exec %q: %v\n", nextArgs[0], err)
	return 1
}

func fail(recorder *envsetup.Recorder, step journey.Step, start time.Time, cause error) int {
	recorder.Errored(step, start)
	recorder.RecordError(spawnerror.InferCategory(cause), cause.Error())
	fmt.Fprintf(os.Stderr, "spawnkit-envsetup: %v\n", cause)
	return 1
}

// mustLookPath resolves name against PATH when it has no slash,
// falling back to the bare name on lookup failure so syscall.Exec
// produces its own (more specific) error.
func mustLookPath(name string) string {
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}
