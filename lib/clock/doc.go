// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so spawn
// deadlines, preloader-idle timers, and exit-polling tickers can be
// driven deterministically in tests instead of racing real wall time.
//
// handshake.Deadline, the handshake Session's timeout timer, a
// journey.Journey's step timestamps, and SmartSpawner's exit poller all
// take a Clock parameter instead of calling
// time.Now, time.After, time.NewTicker, time.AfterFunc, or time.Sleep
// directly. In production, Real() provides the standard library
// behavior. In tests, Fake() provides a deterministic clock that
// advances only when Advance is called.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type SmartSpawner struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	sp := &SmartSpawner{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	sp := &SmartSpawner{clock: c}
//	// ... start a spawn attempt in a goroutine ...
//	c.WaitForTimers(1) // wait for the handshake deadline timer to register
//	c.Advance(30 * time.Second) // fire the timeout deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, NewTicker, or AfterFunc on a
// FakeClock, it registers a pending timer. Use WaitForTimers to block
// until a specific number of timers are registered before calling
// Advance. This eliminates the race between timer registration and
// time advancement that plagues tests using time.Sleep for
// synchronization — the same race a flaky handshake-timeout test would
// otherwise hit.
package clock
