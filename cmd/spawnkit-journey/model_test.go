// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/lib/clock"
)

func newTestJourney() *journey.Journey {
	return journey.New(journey.TypeSpawnDirectly, false, clock.Fake(time.Unix(0, 0)))
}

func TestRenderStepLineInProgress(t *testing.T) {
	j := newTestJourney()
	step := journey.StepSpawningKitPreparation
	if err := j.SetStepInProgress(step, false); err != nil {
		t.Fatal(err)
	}

	line := renderStepLine("⠋", step, j.Get(step))
	if !strings.Contains(line, "⠋") {
		t.Errorf("in-progress line should contain the spinner frame, got %q", line)
	}
}

func TestRenderStepLinePerformed(t *testing.T) {
	j := newTestJourney()
	step := journey.StepSpawningKitPreparation
	_ = j.SetStepInProgress(step, false)
	if err := j.SetStepPerformed(step, false); err != nil {
		t.Fatal(err)
	}

	line := renderStepLine("⠋", step, j.Get(step))
	if !strings.Contains(line, "✓") {
		t.Errorf("performed line should contain a checkmark, got %q", line)
	}
	if !strings.Contains(line, "us)") {
		t.Errorf("performed line should include a duration suffix, got %q", line)
	}
}

func TestRenderStepLineErrored(t *testing.T) {
	j := newTestJourney()
	step := journey.StepSpawningKitPreparation
	_ = j.SetStepInProgress(step, false)
	if err := j.SetStepErrored(step, false); err != nil {
		t.Fatal(err)
	}

	line := renderStepLine("⠋", step, j.Get(step))
	if !strings.Contains(line, "✗") {
		t.Errorf("errored line should contain a cross, got %q", line)
	}
}

func TestJourneyIsTerminal(t *testing.T) {
	j := newTestJourney()
	if journeyIsTerminal(j) {
		t.Error("a freshly constructed journey should not be terminal")
	}

	for _, step := range j.Steps() {
		_ = j.SetStepInProgress(step, true)
		_ = j.SetStepPerformed(step, true)
	}
	if !journeyIsTerminal(j) {
		t.Error("a journey whose SPAWNING_KIT_FINISH step is performed should be terminal")
	}
}
