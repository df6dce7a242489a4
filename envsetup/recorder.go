// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envsetup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/spawnerror"
)

// Recorder writes this process's own journey step progress and any
// error artifacts into the work directory, so the supervisor's
// Perform call can observe them without a side channel back to this
// short-lived child (§4.6: the envsetupper has no connection back to
// the spawning process other than the work directory).
//
// A write failure here is logged to stderr and otherwise ignored:
// losing a progress file must never abort an otherwise-successful
// spawn.
type Recorder struct {
	workDir string
}

func NewRecorder(workDir string) *Recorder {
	return &Recorder{workDir: workDir}
}

func (r *Recorder) stepDir(step journey.Step) string {
	return filepath.Join(r.workDir, "response", "steps", step.LowerCase())
}

// InProgress marks step in progress immediately, before doing any of
// its work, so a premature exit mid-step is visible to the supervisor
// as STEP_IN_PROGRESS rather than STEP_NOT_STARTED.
func (r *Recorder) InProgress(step journey.Step) {
	dir := r.stepDir(step)
	if err := os.MkdirAll(dir, 0700); err != nil {
		warn(err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "state"), []byte(journey.StateInProgress.String()), 0600); err != nil {
		warn(err)
	}
}

// Performed marks step performed, recording its duration since start.
func (r *Recorder) Performed(step journey.Step, start time.Time) {
	r.complete(step, journey.StatePerformed, start)
}

// Errored marks step errored, recording its duration since start.
func (r *Recorder) Errored(step journey.Step, start time.Time) {
	r.complete(step, journey.StateErrored, start)
}

func (r *Recorder) complete(step journey.Step, state journey.State, start time.Time) {
	dir := r.stepDir(step)
	if err := os.MkdirAll(dir, 0700); err != nil {
		warn(err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "state"), []byte(state.String()), 0600); err != nil {
		warn(err)
		return
	}
	usec := time.Since(start).Microseconds()
	if err := os.WriteFile(filepath.Join(dir, "duration"), []byte(fmt.Sprintf("%d", usec)), 0600); err != nil {
		warn(err)
	}
}

// RecordError writes response/error/category and response/error/summary
// for a failure detected by this process. It writes no HTML
// descriptions and no advanced problem details.
func (r *Recorder) RecordError(category spawnerror.Category, summary string) {
	dir := filepath.Join(r.workDir, "response", "error")
	if err := os.MkdirAll(dir, 0700); err != nil {
		warn(err)
		return
	}
	writeIfNonEmpty(filepath.Join(dir, "category"), category.String())
	writeIfNonEmpty(filepath.Join(dir, "summary"), summary)
}

func writeIfNonEmpty(path, content string) {
	if content == "" {
		return
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		warn(err)
	}
}

func warn(err error) {
	fmt.Fprintf(os.Stderr, "spawnkit-envsetup: warning: %v\n", err)
}
