// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

// ErrClosed marks errors caused by the session's socket or process
// being gone. Calls in flight when the transport dies fail with an
// error wrapping it, as do calls issued after Close.
var ErrClosed = errors.New("session closed")

// ErrProtocol marks errors caused by the companion speaking something
// this package does not understand: an unknown response tag for a
// pending request, an unparsable handshake, a malformed payload.
// Usually version skew between host and companion script.
var ErrProtocol = errors.New("protocol violation")

// ExecError is a Python exception raised by submitted code. It is
// scoped to the one Run call that raised it; the session and all other
// in-flight calls are unaffected.
type ExecError struct {
	// Type is the exception class name, e.g. "ZeroDivisionError".
	Type string

	// Message is str() of the exception.
	Message string
}

func (e *ExecError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("python: %s", e.Type)
	}
	return fmt.Sprintf("python: %s: %s", e.Type, e.Message)
}
