// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"sync"
	"time"

	"github.com/phusion-spawning/spawningkit/lib/clock"
)

// Deadline is the remaining-microseconds countdown shared through a
// HandshakeSession (§5: "The overall deadline is a remaining-
// microseconds counter shared through the HandshakeSession; every
// blocking call accepts a pointer to it and subtracts elapsed time on
// return").
//
// Elapsed time is always computed as now - start: never reversed.
type Deadline struct {
	mu        sync.Mutex
	remaining time.Duration
	clk       clock.Clock
}

// NewDeadline starts a countdown of total duration.
func NewDeadline(total time.Duration, clk clock.Clock) *Deadline {
	if clk == nil {
		clk = clock.Real()
	}
	return &Deadline{remaining: total, clk: clk}
}

// Remaining returns the time left, clamped to zero.
func (d *Deadline) Remaining() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remaining < 0 {
		return 0
	}
	return d.remaining
}

// Expired reports whether the deadline has already been reached.
func (d *Deadline) Expired() bool {
	return d.Remaining() <= 0
}

// Spend records that a blocking call starting at start just returned,
// subtracting the elapsed wall time from the remaining budget. Returns
// the new remaining duration.
func (d *Deadline) Spend(start time.Time) time.Duration {
	elapsed := d.clk.Now().Sub(start)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.remaining -= elapsed
	if d.remaining < 0 {
		d.remaining = 0
	}
	return d.remaining
}

// Start returns the current time according to the deadline's clock,
// for pairing with a subsequent Spend call.
func (d *Deadline) Start() time.Time {
	return d.clk.Now()
}
