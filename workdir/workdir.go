// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workdir implements the scoped per-spawn filesystem directory
// through which the supervisor, an optional preloader, and the
// spawned child exchange command inputs, response artifacts, and
// diagnostic dumps (§3, §4.2 of the design this package implements).
package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Fixed layout components, relative to the WorkDir root.
const (
	ArgsFile = "args.json"

	ResponseDir            = "response"
	ResponsePropertiesFile = "response/properties.json"
	ResponseFinishFile     = "response/finish"
	ResponseStepsDir       = "response/steps"
	ResponseErrorDir       = "response/error"

	ErrorCategoryFile                = "response/error/category"
	ErrorSummaryFile                 = "response/error/summary"
	ErrorAdvancedDetailsFile         = "response/error/advanced_problem_details"
	ErrorProblemDescriptionHTMLFile  = "response/error/problem_description.html"
	ErrorSolutionDescriptionHTMLFile = "response/error/solution_description.html"

	EnvDumpDir            = "envdump"
	EnvDumpEnvVarsFile    = "envdump/envvars"
	EnvDumpUserInfoFile   = "envdump/user_info"
	EnvDumpUlimitsFile    = "envdump/ulimits"
	EnvDumpAnnotationsDir = "envdump/annotations"
)

// dirMode is the permission mode for a WorkDir root and its
// subdirectories: owner-only, matching §4.2's "private directory (mode
// 0700)".
const dirMode = 0700

// WorkDir is a filesystem directory owned by exactly one spawn
// attempt. It is created before the first fork, owned exclusively by
// the supervisor, and removed by Drop when the attempt ends;
// ExtractDiagnostics can archive its diagnostics before that.
type WorkDir struct {
	root string
}

// Create generates a new private WorkDir under baseDir (e.g. the
// system temp directory) with the fixed skeleton from §3. The
// directory name is a UUID so concurrent spawns never collide.
func Create(baseDir string) (*WorkDir, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	name := "spawningkit-" + uuid.NewString()
	root := filepath.Join(baseDir, name)

	if err := os.Mkdir(root, dirMode); err != nil {
		return nil, fmt.Errorf("workdir: creating %s: %w", root, err)
	}

	w := &WorkDir{root: root}
	for _, dir := range []string{ResponseDir, ResponseStepsDir, ResponseErrorDir, EnvDumpDir, EnvDumpAnnotationsDir} {
		if err := os.MkdirAll(w.PathIn(dir), dirMode); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("workdir: creating %s: %w", dir, err)
		}
	}
	return w, nil
}

// Path returns the WorkDir's root path.
func (w *WorkDir) Path() string { return w.root }

// PathIn joins subpath onto the WorkDir's root.
func (w *WorkDir) PathIn(subpath string) string {
	return filepath.Join(w.root, filepath.FromSlash(subpath))
}

// StepStateFile returns the path of the state file for step's
// lowercase name, e.g. response/steps/spawning_kit_preparation/state.
func (w *WorkDir) StepStateFile(stepLowerCase string) string {
	return w.PathIn(filepath.Join(ResponseStepsDir, stepLowerCase, "state"))
}

// StepDurationFile returns the path of the duration file for step's
// lowercase name.
func (w *WorkDir) StepDurationFile(stepLowerCase string) string {
	return w.PathIn(filepath.Join(ResponseStepsDir, stepLowerCase, "duration"))
}

// Drop removes the WorkDir recursively. Safe to call more than once.
func (w *WorkDir) Drop() error {
	if w.root == "" {
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("workdir: removing %s: %w", w.root, err)
	}
	return nil
}
