// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/workdir"
)

// childProperties is the shape of response/properties.json (§4.5
// step 3): "an object with a sockets array whose entries each have
// name, address, protocol, concurrency:int>0."
type childProperties struct {
	Sockets []Socket `json:"sockets"`
}

// readProperties reads and validates response/properties.json.
func readProperties(w *workdirPaths) ([]Socket, error) {
	data, err := os.ReadFile(w.PropertiesPath)
	if err != nil {
		return nil, fmt.Errorf("handshake: reading properties.json: %w", err)
	}

	var props childProperties
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("handshake: parsing properties.json: %w", err)
	}
	if len(props.Sockets) == 0 {
		return nil, fmt.Errorf("handshake: properties.json has no sockets")
	}
	for _, socket := range props.Sockets {
		if socket.Name == "" || socket.Address == "" || socket.Protocol == "" {
			return nil, fmt.Errorf("handshake: properties.json socket missing name/address/protocol")
		}
		if socket.Concurrency <= 0 {
			return nil, fmt.Errorf("handshake: properties.json socket %q has non-positive concurrency", socket.Name)
		}
	}
	return props.Sockets, nil
}

// workdirPaths is a tiny convenience view over a WorkDir's response
// subtree, used internally to avoid repeating PathIn calls.
type workdirPaths struct {
	ResponseDir    string
	FinishPath     string
	PropertiesPath string
	StepsDir       string
	ErrorDir       string
}

func paths(w *workdir.WorkDir) *workdirPaths {
	return &workdirPaths{
		ResponseDir:    w.PathIn(workdir.ResponseDir),
		FinishPath:     w.PathIn(workdir.ResponseFinishFile),
		PropertiesPath: w.PathIn(workdir.ResponsePropertiesFile),
		StepsDir:       w.PathIn(workdir.ResponseStepsDir),
		ErrorDir:       w.PathIn(workdir.ResponseErrorDir),
	}
}

// errorArtifacts is the parsed content of response/error/* (§3).
type errorArtifacts struct {
	Category                string
	Summary                 string
	AdvancedDetails         json.RawMessage
	ProblemDescriptionHTML  string
	SolutionDescriptionHTML string
}

// readErrorArtifacts reads whatever error/* files the failing
// participant managed to write. Missing files are simply absent from
// the result — readErrorArtifacts never errors.
func readErrorArtifacts(w *workdirPaths) errorArtifacts {
	var artifacts errorArtifacts

	if data, err := os.ReadFile(filepath.Join(w.ErrorDir, "category")); err == nil {
		artifacts.Category = strings.TrimSpace(string(data))
	}
	if data, err := os.ReadFile(filepath.Join(w.ErrorDir, "summary")); err == nil {
		artifacts.Summary = strings.TrimSpace(string(data))
	}
	if data, err := os.ReadFile(filepath.Join(w.ErrorDir, "advanced_problem_details")); err == nil {
		artifacts.AdvancedDetails = json.RawMessage(data)
	}
	if data, err := os.ReadFile(filepath.Join(w.ErrorDir, "problem_description.html")); err == nil {
		artifacts.ProblemDescriptionHTML = string(data)
	}
	if data, err := os.ReadFile(filepath.Join(w.ErrorDir, "solution_description.html")); err == nil {
		artifacts.SolutionDescriptionHTML = string(data)
	}
	return artifacts
}

// mergeChildSteps reads every response/steps/<step>/{state,duration}
// file the child wrote and applies it onto j with force=true, so a
// child-recorded step overrides whatever the supervisor's own view of
// that step was (§4.5 step 4: "the supervisor's journey merged with
// child-recorded step states/durations").
func mergeChildSteps(j *journey.Journey, stepsDir string) {
	entries, err := os.ReadDir(stepsDir)
	if err != nil {
		return
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
		case journey.StateNotStarted:
			j.SetStepNotStarted(step, true)
		}

		if durationData, err := os.ReadFile(filepath.Join(stepsDir, entry.Name(), "duration")); err == nil {
			if usec, err := strconv.ParseInt(strings.TrimSpace(string(durationData)), 10, 64); err == nil {
				j.SetExecutionDuration(step, time.Duration(usec)*time.Microsecond)
			}
		}
	}
}
