// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides this module's standard CBOR encoding
// configuration.
//
// This module uses two serialization formats with a clear boundary:
//
//   - JSON for the on-disk work-directory handshake contract
//     (args.json, response/properties.json, response/error/*) and CLI
//     output — formats a human or another language's tooling might
//     read directly.
//   - CBOR for the spawn-history ledger's snapshot column (history):
//     a history.Snapshot holding the journey's step states plus, on
//     failure, the error category and summary, encoded once per spawn
//     attempt and never touched by anything outside this module.
//
// This package provides the shared CBOR encoding and decoding modes so
// every snapshot encodes identically without duplicating configuration.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes, so two equal snapshots
// are stored as identical blobs.
//
// For buffer-oriented operations (files, tokens):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets, IPC):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON. Example: history.Snapshot, the
//     ledger's blob column.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Example: handshake.Socket, parsed
//     from the work directory's response/properties.json.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
