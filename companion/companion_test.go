// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"bytes"
	"testing"
)

func TestScriptIsCopied(t *testing.T) {
	first := Script()
	if len(first) == 0 {
		t.Fatal("embedded script is empty")
	}

	first[0] = '#'
	first[1] = '!'
	second := Script()
	if &first[0] == &second[0] {
		t.Fatal("Script should return a fresh copy")
	}
	if second[0] != script[0] || second[1] != script[1] {
		t.Error("mutating a returned script leaked into the embedded bytes")
	}
}

func TestScriptSpeaksProtocol(t *testing.T) {
	// The handshake status words are protocol constants; their absence
	// means the wrong file got embedded.
	for _, marker := range []string{"READY", "ERROR", "127.0.0.1"} {
		if !bytes.Contains(script, []byte(marker)) {
			t.Errorf("embedded script does not mention %q", marker)
		}
	}
}

func TestDigest(t *testing.T) {
	digest := Digest()
	if len(digest) != 64 {
		t.Fatalf("Digest() is %d characters, want 64 hex", len(digest))
	}
	if digest != Digest() {
		t.Error("Digest should be stable across calls")
	}
	if digest != computeDigest(script) {
		t.Error("Digest does not match a recomputation over the embedded script")
	}
}
