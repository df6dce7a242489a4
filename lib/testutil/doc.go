// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the spawn-handshake
// test suite.
//
// [SocketDir] creates a temporary directory in /tmp suitable for the
// Unix domain command sockets a preloader listens on. Unix domain
// sockets have a 108-byte path limit (sun_path in sockaddr_un), and
// t.TempDir() paths are sometimes too long for that, which would break
// only the SmartSpawner tests and nothing else. The directory is
// automatically removed when the test completes.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) for
// the exit/ready channels this module passes around, so individual
// tests do not need direct time.After calls.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation — work dir names, socket addresses, anything that
// needs to not collide across parallel subtests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no dependencies on the rest of this module.
package testutil
