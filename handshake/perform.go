// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/lib/process"
	"github.com/phusion-spawning/spawningkit/spawnerror"
)

// workdirFinishName is the bare filename watchForFinish looks for
// within a WorkDir's response directory (workdir.ResponseFinishFile
// minus its directory prefix).
const workdirFinishName = "finish"

// ExitStatus describes how a spawned child terminated. Producers differ
// per strategy: a direct spawn learns this from cmd.Wait(), while a
// preloader-forked child is not owned by this process and must be
// polled for via process.IsAlive instead.
type ExitStatus struct {
	ExitCode int
	Signaled bool
	Signal   string
}

// gracePeriod is how long Perform waits after SIGTERM before escalating
// to SIGKILL on deadline expiry.
const gracePeriod = 2 * time.Second

// Perform implements SPAWNING_KIT_HANDSHAKE_PERFORM (§4.5): it waits for
// the child (or preloader-forked grandchild) to either report readiness
// through the work directory or exit prematurely, whichever happens
// first, honoring the session's deadline throughout.
//
// childPID is the PID to signal and liveness-probe on timeout; it may
// be a direct child or a process this supervisor does not own (the
// SmartSpawner case). stdoutErr is the read end of the child's captured
// output, or nil if nothing is being captured. exited is closed — by a
// goroutine the caller supplies, appropriate to its spawn strategy —
// the moment the child's exit is known; its final value (if any) is the
// child's exit status.
func Perform(s *Session, childPID int, stdoutErr io.ReadCloser, exited <-chan ExitStatus) (*Result, *spawnerror.Error) {
	if err := s.Journey.SetStepInProgress(journey.StepSpawningKitHandshakePerform, false); err != nil {
		return nil, failPerform(s, fmt.Errorf("handshake: %w", err), nil)
	}

	if s.Deadline.Expired() {
		return nil, timeoutFailure(s, childPID, nil)
	}

	w := paths(s.WorkDir)

	ready, cleanupWatch, err := watchForFinish(w.ResponseDir, workdirFinishName)
	if err != nil {
		return nil, failPerform(s, fmt.Errorf("handshake: %w", err), nil)
	}
	defer cleanupWatch()

	capture := newCaptureBuffer()
	if stdoutErr != nil {
		go capture.CopyFrom(stdoutErr)
		defer stdoutErr.Close()
	}

	// The file may already exist: a fast child can finish before the
	// watch is even armed. Checking after arming the watch, never
	// before, avoids the classic inotify race.
	if fileExists(w.FinishPath) {
		return finishHandshake(s, w, capture, childPID)
	}

	for {
		start := s.Deadline.Start()
		remaining := s.Deadline.Remaining()
		timer := s.clock.After(remaining)

		select {
		case <-ready:
			s.Deadline.Spend(start)
			return finishHandshake(s, w, capture, childPID)

		case status, ok := <-exited:
			s.Deadline.Spend(start)
			if !ok {
				// Closed with no final status: stop selecting on it
				// so the loop doesn't spin on an always-ready case.
				exited = nil
				continue
			}
			// This branch only fires once the child is already gone,
			// so "the child is still alive" can never hold here — a
			// finish file that shows up anyway (a last gasp before
			// dying, or a leftover from a previous attempt) must not
			// be treated as success. Declare failure unconditionally.
			return nil, prematureExitFailure(s, w, capture, status)

		case <-timer:
			s.Deadline.Spend(start)
			if fileExists(w.FinishPath) {
				return finishHandshake(s, w, capture, childPID)
			}
			return nil, timeoutFailure(s, childPID, capture)
		}
	}
}

// finishHandshake is reached once response/finish exists. It enforces
// the three-part ordering guarantee from §4.5: finish exists (already
// true here), properties.json parses, and the child is still alive
// and running as the expected user, checked in that order. childPID
// may be zero for callers with nothing to probe, in which case the
// liveness and UID checks are skipped.
func finishHandshake(s *Session, w *workdirPaths, capture *captureBuffer, childPID int) (*Result, *spawnerror.Error) {
	sockets, err := readProperties(w)
	if err != nil {
		return nil, failPerform(s, err, capture)
	}

	mergeChildSteps(s.Journey, w.StepsDir)

	if childPID > 0 {
		if !process.IsAlive(childPID) {
			_ = s.Journey.SetStepErrored(journey.StepSpawningKitHandshakePerform, true)
			return nil, spawnerror.New(spawnerror.CategoryInternalError,
				"the process is no longer running even though it reported a finish file").
				WithJourneySnapshot(s.Journey)
		}
		if actual, err := process.UID(childPID); err == nil && actual != s.ExpectedUID {
			_ = s.Journey.SetStepErrored(journey.StepSpawningKitHandshakePerform, true)
			return nil, spawnerror.New(spawnerror.CategoryInternalError,
				fmt.Sprintf("process is running as uid %d, expected uid %d", actual, s.ExpectedUID)).
				WithJourneySnapshot(s.Journey)
		}
	}

	if err := s.Journey.SetStepPerformed(journey.StepSpawningKitHandshakePerform, false); err != nil {
		return nil, failPerform(s, fmt.Errorf("handshake: %w", err), capture)
	}

	return &Result{Sockets: sockets}, nil
}

// prematureExitFailure handles a child that exited before writing
// response/finish: it harvests whatever step/error artifacts and
// captured output exist and reports a SpawnException-equivalent error.
func prematureExitFailure(s *Session, w *workdirPaths, capture *captureBuffer, status ExitStatus) *spawnerror.Error {
	mergeChildSteps(s.Journey, w.StepsDir)
	_ = s.Journey.SetStepErrored(journey.StepSpawningKitHandshakePerform, true)

	artifacts := readErrorArtifacts(w)

	summary := artifacts.Summary
	if summary == "" {
		summary = describeExit(status)
	}

	category := spawnerror.ParseCategory(artifacts.Category)
	spawnErr := spawnerror.New(category, summary).
		WithJourneySnapshot(s.Journey).
		WithProblemDescriptionHTML(artifacts.ProblemDescriptionHTML).
		WithSolutionDescriptionHTML(artifacts.SolutionDescriptionHTML)
	if artifacts.AdvancedDetails != nil {
		spawnErr = spawnErr.WithAdvancedDetails(artifacts.AdvancedDetails)
	}
	if capture != nil {
		spawnErr = spawnErr.WithStdoutErrData(capture.Compressed())
	}
	return spawnErr
}

// timeoutFailure handles deadline expiry: the in-progress step is
// marked errored with TIMEOUT_ERROR, and the child is given one SIGTERM
// followed by a SIGKILL after gracePeriod if it is still alive.
func timeoutFailure(s *Session, childPID int, capture *captureBuffer) *spawnerror.Error {
	_ = s.Journey.SetStepErrored(journey.StepSpawningKitHandshakePerform, true)

	if childPID > 0 {
		terminateSlowChild(childPID)
	}

	spawnErr := spawnerror.New(spawnerror.CategoryTimeoutError, "the handshake deadline expired before the process became ready").
		WithJourneySnapshot(s.Journey)
	if capture != nil {
		spawnErr = spawnErr.WithStdoutErrData(capture.Compressed())
	}
	return spawnErr
}

// terminateSlowChild sends SIGTERM, waits up to gracePeriod, then
// escalates to SIGKILL if the process is still alive.
func terminateSlowChild(pid int) {
	if !process.IsAlive(pid) {
		return
	}
	_ = unix.Kill(pid, unix.SIGTERM)

	deadline := time.Now().Add(gracePeriod)
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

func describeExit(status ExitStatus) string {
	if status.Signaled {
		return fmt.Sprintf("process was killed by signal %s before it became ready", status.Signal)
	}
	return fmt.Sprintf("process exited with status %d before it became ready", status.ExitCode)
}

func failPerform(s *Session, cause error, capture *captureBuffer) *spawnerror.Error {
	_ = s.Journey.SetStepErrored(journey.StepSpawningKitHandshakePerform, true)
	spawnErr := spawnerror.New(spawnerror.InferCategory(cause), cause.Error()).
		WithJourneySnapshot(s.Journey)
	if capture != nil {
		spawnErr = spawnErr.WithStdoutErrData(capture.Compressed())
	}
	return spawnErr
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
