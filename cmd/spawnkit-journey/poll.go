// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/lib/clock"
	"github.com/phusion-spawning/spawningkit/workdir"
)

// journeyType and usingWrapper are fixed for the lifetime of the
// viewer process (set from CLI flags in main.go), since the step set
// a Journey exposes is determined at construction, not discovered
// from the work dir.
var (
	viewerJourneyType  journey.Type
	viewerUsingWrapper bool
)

// pollJourney rebuilds a Journey from whatever response/steps/*
// entries currently exist in workDirPath, the same per-step
// state/duration files handshake.Perform's mergeChildSteps reads, just
// read directly since the viewer runs in a separate process from the
// spawn attempt it watches.
func pollJourney(workDirPath string) tea.Cmd {
	return func() tea.Msg {
		stepsDir := filepath.Join(workDirPath, filepath.FromSlash(workdir.ResponseStepsDir))

		j := journey.New(viewerJourneyType, viewerUsingWrapper, clock.Real())

		entries, err := os.ReadDir(stepsDir)
		if err != nil {
			if os.IsNotExist(err) {
				// The spawn attempt hasn't created its work dir's
				// steps subtree yet (or has already cleaned it up);
				// report an empty-but-valid journey rather than an
				// error so the viewer just keeps waiting.
				return journeyPolledMsg{j: j}
			}
			return journeyPolledMsg{err: err}
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			step, err := journey.ParseStep(strings.ToUpper(entry.Name()))
			if err != nil {
				continue
			}

			stateData, err := os.ReadFile(filepath.Join(stepsDir, entry.Name(), "state"))
			if err != nil {
				continue
			}
			state, err := journey.ParseState(strings.TrimSpace(string(stateData)))
			if err != nil {
				continue
			}

			switch state {
			case journey.StatePerformed:
				j.SetStepPerformed(step, true)
			case journey.StateErrored:
				j.SetStepErrored(step, true)
			case journey.StateInProgress:
				j.SetStepInProgress(step, true)
			}

			if durationData, err := os.ReadFile(filepath.Join(stepsDir, entry.Name(), "duration")); err == nil {
				if usec, err := strconv.ParseInt(strings.TrimSpace(string(durationData)), 10, 64); err == nil {
					j.SetExecutionDuration(step, time.Duration(usec)*time.Microsecond)
				}
			}
		}

		return journeyPolledMsg{j: j}
	}
}
