// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/workdir"
)

func writeStepFile(t *testing.T, w *workdir.WorkDir, step journey.Step, state string, usecDuration string) {
	t.Helper()
	statePath := w.StepStateFile(step.LowerCase())
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(statePath, []byte(state), 0o644); err != nil {
		t.Fatal(err)
	}
	if usecDuration != "" {
		if err := os.WriteFile(w.StepDurationFile(step.LowerCase()), []byte(usecDuration), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPollJourneyReadsStepFiles(t *testing.T) {
	viewerJourneyType = journey.TypeSpawnDirectly
	viewerUsingWrapper = false

	base := t.TempDir()
	w, err := workdir.Create(base)
	if err != nil {
		t.Fatalf("workdir.Create: %v", err)
	}
	defer w.Drop()

	writeStepFile(t, w, journey.StepSpawningKitPreparation, "STEP_PERFORMED", "1500")
	writeStepFile(t, w, journey.StepSpawningKitForkSubprocess, "STEP_IN_PROGRESS", "")

	msg := pollJourney(w.Path())()
	polled, ok := msg.(journeyPolledMsg)
	if !ok {
		t.Fatalf("pollJourney returned %T, want journeyPolledMsg", msg)
	}
	if polled.err != nil {
		t.Fatalf("pollJourney error: %v", polled.err)
	}

	info := polled.j.Get(journey.StepSpawningKitPreparation)
	if info.State != journey.StatePerformed {
		t.Errorf("SpawningKitPreparation state = %s, want STEP_PERFORMED", info.State)
	}
	if info.UsecDuration() != 1500 {
		t.Errorf("SpawningKitPreparation duration = %d, want 1500", info.UsecDuration())
	}

	info = polled.j.Get(journey.StepSpawningKitForkSubprocess)
	if info.State != journey.StateInProgress {
		t.Errorf("SpawningKitForkSubprocess state = %s, want STEP_IN_PROGRESS", info.State)
	}
}

func TestPollJourneyMissingStepsDir(t *testing.T) {
	viewerJourneyType = journey.TypeSpawnDirectly
	viewerUsingWrapper = false

	msg := pollJourney(filepath.Join(t.TempDir(), "does-not-exist"))()
	polled, ok := msg.(journeyPolledMsg)
	if !ok {
		t.Fatalf("pollJourney returned %T, want journeyPolledMsg", msg)
	}
	if polled.err != nil {
		t.Fatalf("pollJourney error: %v", polled.err)
	}
	if polled.j == nil {
		t.Fatal("expected a non-nil empty journey when the steps dir doesn't exist yet")
	}
	for _, step := range polled.j.Steps() {
		if polled.j.Get(step).State != journey.StateNotStarted {
			t.Errorf("step %s should be NotStarted on a never-started work dir", step)
		}
	}
}
