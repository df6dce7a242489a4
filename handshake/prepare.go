// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"encoding/json"
	"fmt"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/spawnerror"
	"github.com/phusion-spawning/spawningkit/workdir"
)

// Prepare populates the session's WorkDir with the command inputs the
// child reads (§4.4). args.json is written atomically, replacing any
// earlier copy whole. A second call on the same Session fails, since
// SPAWNING_KIT_PREPARATION is no longer NotStarted and the unforced
// transition to InProgress is refused. On failure it marks
// SPAWNING_KIT_PREPARATION errored and returns the resulting
// *spawnerror.Error.
func Prepare(s *Session) *spawnerror.Error {
	if err := s.Journey.SetStepInProgress(journey.StepSpawningKitPreparation, false); err != nil {
		return markPreparationFailed(s, fmt.Errorf("handshake: %w", err))
	}

	data, err := json.Marshal(s.Config)
	if err != nil {
		return markPreparationFailed(s, fmt.Errorf("handshake: marshaling config: %w", err))
	}

	if err := workdir.WriteFileAtomic(s.WorkDir.PathIn(workdir.ArgsFile), data, 0600); err != nil {
		return markPreparationFailed(s, fmt.Errorf("handshake: writing args.json: %w", err))
	}

	if err := s.Journey.SetStepPerformed(journey.StepSpawningKitPreparation, false); err != nil {
		return markPreparationFailed(s, fmt.Errorf("handshake: %w", err))
	}
	return nil
}

func markPreparationFailed(s *Session, cause error) *spawnerror.Error {
	_ = s.Journey.SetStepErrored(journey.StepSpawningKitPreparation, true)
	return spawnerror.New(spawnerror.InferCategory(cause), cause.Error()).
		WithJourneySnapshot(s.Journey)
}
