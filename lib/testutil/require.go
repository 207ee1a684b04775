// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// failingT is the slice of testing.T the channel helpers need. Taking
// an interface keeps them callable from wrappers around *testing.T.
type failingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test. The timeout is a hang guard for tests that would otherwise
// block forever on a channel a broken peer never writes to.
//
//	reply := testutil.RequireReceive(t, replies, 5*time.Second, "waiting for reply")
func RequireReceive[T any](t failingT, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without a value: %s", describe(msgAndArgs))
		}
		return value
	case <-time.After(timeout):
		t.Fatalf("nothing received after %v: %s", timeout, describe(msgAndArgs))
	}
	panic("unreachable")
}

// RequireSend delivers value on ch within timeout, or fails the test.
//
//	testutil.RequireSend(t, requests, request, 5*time.Second, "queueing request")
func RequireSend[T any](t failingT, ch chan<- T, value T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case ch <- value:
	case <-time.After(timeout):
		t.Fatalf("send still blocked after %v: %s", timeout, describe(msgAndArgs))
	}
}

// RequireClosed waits for ch to close (or yield a value) within
// timeout, or fails the test. Meant for done channels that signal by
// closing.
//
//	testutil.RequireClosed(t, session.Done(), 5*time.Second, "session teardown")
func RequireClosed(t failingT, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("channel still open after %v: %s", timeout, describe(msgAndArgs))
	}
}

// describe renders the trailing message arguments: a lone string is
// used as is, a format string with arguments goes through Sprintf.
func describe(msgAndArgs []any) string {
	switch {
	case len(msgAndArgs) == 0:
		return "(no message)"
	case len(msgAndArgs) == 1:
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
