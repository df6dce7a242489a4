// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spawner implements the two strategies that turn a
// handshake.Session into a running application process: DirectSpawner
// forks and execs the envsetupper chain itself (§4 TypeSpawnDirectly),
// while SmartSpawner delegates the fork to a long-lived preloader
// process reused across many spawns (§4 TypeSpawnThroughPreloader,
// §6).
package spawner

import (
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/phusion-spawning/spawningkit/handshake"
	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/lib/clock"
	"github.com/phusion-spawning/spawningkit/spawnerror"
	"github.com/phusion-spawning/spawningkit/workdir"
)

// EnvsetupPath is the filesystem path to the spawnkit-envsetup binary.
// Overridden in tests.
var EnvsetupPath = "spawnkit-envsetup"

// DirectSpawner spawns one application process directly: fork, exec
// spawnkit-envsetup --before, which execs spawnkit-envsetup --after
// directly (no login shell in between), then the application's own
// start command.
type DirectSpawner struct {
	clock clock.Clock
}

// NewDirectSpawner constructs a DirectSpawner. A nil clock uses
// clock.Real().
func NewDirectSpawner(clk clock.Clock) *DirectSpawner {
	if clk == nil {
		clk = clock.Real()
	}
	return &DirectSpawner{clock: clk}
}

// Spawn runs one full SPAWN_DIRECTLY journey (§4.4-§4.5): prepares the
// work directory, forks the envsetupper chain, and performs the
// handshake, returning the application's Result on success.
func (d *DirectSpawner) Spawn(config handshake.SpawnConfig, baseWorkDir string, timeout time.Duration) (*handshake.Result, *spawnerror.Error) {
	w, err := workdir.Create(baseWorkDir)
	if err != nil {
		return nil, spawnerror.New(spawnerror.CategoryIOError, err.Error())
	}
	defer w.Drop()

	expectedUID, err := config.ResolveExpectedUID()
	if err != nil {
		return nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}

	session := handshake.NewSession(config, journey.TypeSpawnDirectly, w, expectedUID, timeout, d.clock)

	if spawnErr := handshake.Prepare(session); spawnErr != nil {
		return nil, spawnErr
	}

	cmd, stdoutErr, _, spawnErr := forkEnvsetupChain(session, w, false)
	if spawnErr != nil {
		return nil, spawnErr
	}

	exited := waitInBackground(cmd)

	result, spawnErr := handshake.Perform(session, cmd.Process.Pid, stdoutErr, exited)
	if spawnErr != nil {
		return nil, spawnErr
	}

	result.PID = cmd.Process.Pid
	return result, nil
}

// forkEnvsetupChain starts "spawnkit-envsetup <workdir> --before"
// against an already-Prepare'd session, marking
// SPAWNING_KIT_FORK_SUBPROCESS in progress/performed around the fork.
// It is shared between DirectSpawner (spawning the real application)
// and SmartSpawner (spawning the preloader itself) — both put a
// process through the identical ulimit/user-switch/CPU-jail/chdir
// chain before anything domain-specific happens (§4.6).
//
// withStdinPipe requests a stdin pipe whose write end is returned to
// the caller instead of left closed; only the preloader case needs
// this, since a preloader treats stdin EOF as its graceful-stop signal
// (§6).
func forkEnvsetupChain(session *handshake.Session, w *workdir.WorkDir, withStdinPipe bool) (*exec.Cmd, io.ReadCloser, io.WriteCloser, *spawnerror.Error) {
	if err := session.Journey.SetStepInProgress(journey.StepSpawningKitForkSubprocess, false); err != nil {
		return nil, nil, nil, spawnerror.New(spawnerror.CategoryInternalError, err.Error())
	}

	cmd := exec.Command(EnvsetupPath, w.Path(), "--before")
	stdoutErr, pipeErr := cmd.StdoutPipe()
	if pipeErr != nil {
		return nil, nil, nil, spawnerror.New(spawnerror.CategoryIOError, pipeErr.Error())
	}
	cmd.Stderr = cmd.Stdout

	var stdin io.WriteCloser
	if withStdinPipe {
		stdin, pipeErr = cmd.StdinPipe()
		if pipeErr != nil {
			return nil, nil, nil, spawnerror.New(spawnerror.CategoryIOError, pipeErr.Error())
		}
	}

	if err := cmd.Start(); err != nil {
		_ = session.Journey.SetStepErrored(journey.StepSpawningKitForkSubprocess, true)
		return nil, nil, nil, spawnerror.New(spawnerror.CategoryOperatingSystemError,
			fmt.Sprintf("unable to start %s: %v", EnvsetupPath, err))
	}
	_ = session.Journey.SetStepPerformed(journey.StepSpawningKitForkSubprocess, false)

	return cmd, stdoutErr, stdin, nil
}

// waitInBackground runs cmd.Wait in its own goroutine and reports the
// result on a channel, the shape handshake.Perform expects for a
// directly-owned child.
func waitInBackground(cmd *exec.Cmd) <-chan handshake.ExitStatus {
	exited := make(chan handshake.ExitStatus, 1)
	go func() {
		waitErr := cmd.Wait()
		exited <- exitStatusFromWaitError(waitErr)
		close(exited)
	}()
	return exited
}

// exitStatusFromWaitError converts the error returned by
// (*exec.Cmd).Wait into a handshake.ExitStatus.
func exitStatusFromWaitError(err error) handshake.ExitStatus {
	if err == nil {
		return handshake.ExitStatus{ExitCode: 0}
	}
	var exitErr *exec.ExitError
	if !asExitError(err, &exitErr) {
		return handshake.ExitStatus{ExitCode: -1}
	}
	if exitErr.ProcessState == nil {
		return handshake.ExitStatus{ExitCode: -1}
	}
	return handshake.ExitStatus{ExitCode: exitErr.ExitCode()}
}

func asExitError(err error, target **exec.ExitError) bool {
	if exitErr, ok := err.(*exec.ExitError); ok {
		*target = exitErr
		return true
	}
	return false
}
