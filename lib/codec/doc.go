// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the bridge's standard CBOR encoding
// configuration.
//
// The bridge uses two serialization formats with a clear boundary:
//
//   - JSON for the interpreter protocol: the handshake line, the
//     newline-delimited message stream, and CLI output. The companion
//     side is plain Python, and JSON is the one format both halves
//     read without third-party help.
//   - CBOR for host-side artifacts: transcript files and any other
//     on-disk state the host writes for itself.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, so transcript files diff and deduplicate cleanly.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (transcript files are CBOR sequences,
// one record per data item):
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
package codec
