// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for pybridge packages.
//
// [WriteScript] writes an executable script into a test-scoped
// temporary directory and returns its absolute path. Session tests use
// it to fabricate interpreter executables with scripted behavior
// (broken handshakes, early exits, hangs) without shelling out to a
// real Python installation.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that tests waiting on a peer do not hand-roll hang guards.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// scope names, request IDs, or payloads distinguishable in shared
// fixtures.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no pybridge-internal dependencies.
package testutil
