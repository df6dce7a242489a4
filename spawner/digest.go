// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawner

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// digestKey seeds the keyed BLAKE3 hash used for preloader restart
// dedupe (§2 domain stack). A fixed, package-private key is
// sufficient: this digest is only ever compared against other values
// produced by this same process, never verified against an untrusted
// source.
var digestKey = [32]byte{'s', 'p', 'a', 'w', 'n', 'k', 'i', 't', '-', 'p', 'r', 'e', 'l', 'o', 'a', 'd', 'e', 'r'}

// digest is a 32-byte BLAKE3 content hash of a preloader's resolved
// command and environment.
type digest [32]byte

func (d digest) String() string {
	return hex.EncodeToString(d[:])
}

// digestPreloaderConfig computes the restart-dedupe key for a
// preloader command line and environment: did the preloader we would
// start now differ from the one already running? Environment entries
// are sorted by key first so map iteration order never affects the
// digest.
func digestPreloaderConfig(command []string, env map[string]string) digest {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		// digestKey is a fixed 32-byte array; NewKeyed only fails on
		// a wrong-length key, which cannot happen here.
		panic("spawner: blake3.NewKeyed: " + err.Error())
	}

	for _, arg := range command {
		hasher.Write([]byte(arg))
		hasher.Write([]byte{0})
	}
	hasher.Write([]byte{0xff})

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		hasher.Write([]byte(k))
		hasher.Write([]byte{'='})
		hasher.Write([]byte(env[k]))
		hasher.Write([]byte{0})
	}

	var out digest
	sum := hasher.Sum(nil)
	copy(out[:], sum)
	return out
}
