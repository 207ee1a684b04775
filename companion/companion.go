// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package companion carries the embedded interpreter-side program.
// The session layer feeds it to a Python interpreter over stdin; it
// never touches the filesystem, so a session needs nothing installed
// beyond the interpreter itself.
package companion

import (
	_ "embed"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

//go:embed interpreter.py
var script []byte

// scriptDomainKey keys the script digest. Changing it changes every
// reported digest. ASCII domain name, zero-padded to the 32 bytes
// BLAKE3 keyed mode requires.
var scriptDomainKey = [32]byte{
	'p', 'y', 'b', 'r', 'i', 'd', 'g', 'e', '.', 'c', 'o', 'm', 'p', 'a', 'n', 'i',
	'o', 'n', '.', 's', 'c', 'r', 'i', 'p', 't', 0, 0, 0, 0, 0, 0, 0,
}

var digestHex = computeDigest(script)

// Script returns the interpreter-side program. The returned slice is
// a copy; the embedded bytes stay pristine.
func Script() []byte {
	return append([]byte(nil), script...)
}

// Digest returns the hex BLAKE3 keyed digest of the embedded script.
// Sessions log it at startup so transcripts pin the exact companion
// revision that produced them.
func Digest() string {
	return digestHex
}

// DigestOf digests an alternate companion script with the same key,
// for sessions launched with a script override.
func DigestOf(script []byte) string {
	return computeDigest(script)
}

func computeDigest(data []byte) string {
	hasher, err := blake3.NewKeyed(scriptDomainKey[:])
	if err != nil {
		panic("companion: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
