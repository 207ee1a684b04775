// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteScript writes contents to a file named name in a fresh temporary
// directory, marks it executable, and returns its absolute path. Tests
// use this to stand in fake interpreter executables with scripted
// behavior (emit a handshake, exit with a status, hang) without
// compiling anything.
//
// The file is removed with the test's temporary directory when the
// test completes.
func WriteScript(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o755); err != nil {
		t.Fatalf("writing script %s: %v", name, err)
	}
	return path
}
