// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the tagged value encoding used on the bridge
// socket. Every non-trivial value crossing the wire is a JSON object
// {"t": <tag>, "v": <payload>}; null, booleans, strings, and small
// integers travel untagged as plain JSON scalars.
//
// Tags and their payloads:
//
//	int       decimal text (arbitrary precision)
//	float     decimal text (including "inf", "-inf", "nan")
//	rational  [numerator-text, denominator-text]
//	list      array of wire values
//	tuple     array of wire values
//	set       array of wire values
//	dict      array of [key, value] wire-value pairs
//	pair      [first, second] wire values
//	bytes     base64 text
//	ref       remote reference id string
//	buffer    {"format", "itemsize", "shape", "data"}
//	ndarray   {"dtype", "shape", "data"}
//	media     {"mime", "data"}
//
// Unrecognized tags decode to Opaque rather than failing, so companion
// extensions this package does not know about pass through unchanged.
//
// The package is a leaf: it knows nothing about sessions or processes.
// Remote references decode to the plain Ref id type unless the caller
// supplies a DecodeOptions.NewRef hook to bind them to a live session.
package wire
