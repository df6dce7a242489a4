// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"time"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/spawnerror"
)

// Outcome classifies how a spawn attempt ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// StepSnapshot is the CBOR-encoded shape of one journey step,
// mirroring journey's own renderedStep wire shape.
type StepSnapshot struct {
	State        string `cbor:"state"`
	UsecDuration int64  `cbor:"usec_duration"`
}

// Snapshot is the payload CBOR-encoded into a ledger row's blob
// column: a full journey rendering plus, on failure, the error
// category/summary that ended the attempt.
type Snapshot struct {
	JourneyType  string                  `cbor:"journey_type"`
	UsingWrapper bool                    `cbor:"using_wrapper"`
	Steps        map[string]StepSnapshot `cbor:"steps"`

	ErrorCategory string `cbor:"error_category,omitempty"`
	ErrorSummary  string `cbor:"error_summary,omitempty"`
}

// NewSnapshot builds a Snapshot from a journey as observed at the end
// of a spawn attempt, and the spawnerror.Error that ended it (nil on
// success).
func NewSnapshot(j *journey.Journey, spawnErr *spawnerror.Error) Snapshot {
	var snap Snapshot
	if j != nil {
		snap.JourneyType = j.Type().String()
		snap.UsingWrapper = j.UsingWrapper()
		snap.Steps = make(map[string]StepSnapshot, len(j.Steps()))
		for _, step := range j.Steps() {
			info := j.Get(step)
			snap.Steps[step.String()] = StepSnapshot{
				State:        info.State.String(),
				UsecDuration: info.UsecDuration(),
			}
		}
	}
	if spawnErr != nil {
		snap.ErrorCategory = spawnErr.Category.String()
		snap.ErrorSummary = spawnErr.Summary
	}
	return snap
}

// Entry is one row of the spawn-history ledger.
type Entry struct {
	ID           int64
	StartedAt    time.Time
	AppRoot      string
	ConfigDigest string // hex-encoded BLAKE3 digest, see spawner.digestPreloaderConfig
	Outcome      Outcome
	PID          int
	Snapshot     Snapshot
}
