// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"

	"github.com/bureau-foundation/pybridge/wire"
)

// unmarshalResult maps a result payload to its native Go value.
// References in the tree bind to the receiving session, with a GC
// cleanup registered for release-on-unreachable.
func unmarshalResult(s *Session, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		// Code that never called pb.ret: the companion sends null.
		return nil, nil
	}
	return wire.Decode(raw, wire.DecodeOptions{
		NewRef: func(id string) any { return newRef(s, id) },
	})
}
