// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for work dir names or socket addresses
// that must not collide across parallel subtests.
//
//	workDir := testutil.UniqueID("spawn")    // "spawn-1", "spawn-2", ...
//	sockPath := testutil.UniqueID("preload") // "preload-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
