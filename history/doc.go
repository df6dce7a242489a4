// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history implements a passive, best-effort ledger of past
// spawn attempts for operator diagnostics (§4 SUPPLEMENTED FEATURES).
//
// Persisting journeys across supervisor restarts is explicitly named
// out of scope as a *correctness* requirement in spec.md §1 — nothing
// here reads the ledger back to drive spawn behavior. It exists purely
// so an operator debugging a flaky preloader can ask "what happened
// the last 50 times we tried to spawn this app" after the fact.
//
// Entries are stored as CBOR-encoded snapshots (Core Deterministic
// Encoding, via lib/codec) in a connection-pooled SQLite database
// (lib/sqlitepool). Rows are indexed by start time and app root, and
// Recent filters on the app root; each row also stores whatever
// config digest the caller put in Entry.ConfigDigest.
package history
