// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Wire value tags. These are protocol constants shared with the
// companion script; changing one breaks every deployed companion.
const (
	TagInt      = "int"
	TagFloat    = "float"
	TagRational = "rational"
	TagList     = "list"
	TagTuple    = "tuple"
	TagSet      = "set"
	TagDict     = "dict"
	TagPair     = "pair"
	TagBytes    = "bytes"
	TagRef      = "ref"
	TagBuffer   = "buffer"
	TagNDArray  = "ndarray"
	TagMedia    = "media"
)

// SmallIntLimit bounds the untagged integer fast path: integers with
// absolute value below this limit are sent as plain JSON numbers, the
// rest as tagged decimal text. The limit is well inside the range JSON
// readers handle exactly, so no precision is lost on either side.
const SmallIntLimit = 1 << 20

// Tuple is a fixed-length ordered sequence, distinct from a list so
// that round-trips preserve the companion's tuple/list distinction.
type Tuple []any

// Set is an unordered collection. Element order carries no meaning;
// it reflects whatever order the companion happened to serialize.
type Set []any

// Pair is a single key/value association, the wire form of a
// map-entry-like two-element value.
type Pair struct {
	Key   any
	Value any
}

// Ref is the wire-level form of a remote reference: the opaque id the
// companion assigned to a retained value. Decoding produces Ref values
// unless DecodeOptions.NewRef rebinds them to session-owned handles.
type Ref string

// Opaque carries a tagged value whose tag this package does not
// recognize. Tag is the unrecognized tag; Value is the payload as
// generically decoded JSON, preserved exactly so the value can be
// logged, inspected, or sent back unmodified.
type Opaque struct {
	Tag   string
	Value any
}
