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
// tests need unique identifiers for scope names, request IDs, or
// payloads that must be distinguishable in shared fixtures.
//
//	scope := testutil.UniqueID("scope")      // "scope-1", "scope-2", ...
//	body := testutil.UniqueID("echo-probe")  // "echo-probe-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
