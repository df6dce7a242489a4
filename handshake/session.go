// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"time"

	"github.com/phusion-spawning/spawningkit/journey"
	"github.com/phusion-spawning/spawningkit/lib/clock"
	"github.com/phusion-spawning/spawningkit/workdir"
)

// Socket is one reported listening socket (§3).
type Socket struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Protocol    string `json:"protocol"`
	Concurrency int    `json:"concurrency"`
}

// Result is the successful outcome of a spawn (§3).
type Result struct {
	PID     int      `json:"pid"`
	Sockets []Socket `json:"sockets"`

	// StdinFD/StdoutErrFD are set when the caller requested the child's
	// pipes remain open past the handshake (direct spawn only).
	StdinFD      *int `json:"-"`
	StdoutErrFD  *int `json:"-"`
}

// Session holds all per-spawn mutable state (§4.3): the live config,
// the mutable Journey, a remaining-microseconds deadline, the WorkDir,
// the partial Result, and the expected UID for post-spawn
// verification. No hidden globals — everything a spawn needs lives
// here.
type Session struct {
	Config      SpawnConfig
	Journey     *journey.Journey
	Deadline    *Deadline
	WorkDir     *workdir.WorkDir
	ExpectedUID int

	clock clock.Clock
}

// NewSession builds a Session for one spawn attempt. journeyType and
// config.UsingWrapper() determine the Journey's fixed step set;
// timeout is the overall handshake deadline.
func NewSession(config SpawnConfig, journeyType journey.Type, workDir *workdir.WorkDir, expectedUID int, timeout time.Duration, clk clock.Clock) *Session {
	if clk == nil {
		clk = clock.Real()
	}
	return &Session{
		Config:      config,
		Journey:     journey.New(journeyType, config.UsingWrapper(), clk),
		Deadline:    NewDeadline(timeout, clk),
		WorkDir:     workDir,
		ExpectedUID: expectedUID,
		clock:       clk,
	}
}

// Release drops the session's WorkDir. Extraction of diagnostics (via
// WorkDir.ExtractDiagnostics) must happen before calling Release.
func (s *Session) Release() error {
	return s.WorkDir.Drop()
}
