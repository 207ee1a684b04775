// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Run executes code in the companion and returns its result as a
// native Go value. The code marks its result with pb.ret(value) or
// pb.ret_ref(value); code that finishes without either returns nil.
//
// scope names the namespace the code runs in: "" means __main__, a
// plain name must be a loaded module, and an "@name" is a
// bridge-private namespace created on first use (see FreshScope).
//
// locals, when non-nil, is a transient mapping visible to the code.
// nil and an empty map differ: with nil the code runs directly in the
// scope, so its assignments persist there; with a map (even empty) the
// assignments land in a throwaway dict.
//
// Run blocks until the companion answers, ctx is cancelled, or the
// session dies. Concurrent Run calls from many goroutines are the
// intended way to parallelize work over one session.
func (s *Session) Run(ctx context.Context, code, scope string, locals map[string]any) (any, error) {
	wireLocals, err := marshalLocals(s, locals)
	if err != nil {
		return nil, fmt.Errorf("run locals: %w", err)
	}

	id := s.nextID()
	s.logger.Debug("run", "id", id, "scope", scope, "code_bytes", len(code))
	resp, err := s.roundTrip(ctx, id, runRequest{
		Tag:    tagRun,
		ID:     id,
		Code:   code,
		Scope:  scope,
		Locals: wireLocals,
	})
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	switch resp.Tag {
	case tagResult:
		value, err := unmarshalResult(s, resp.Result)
		if err != nil {
			return nil, fmt.Errorf("run result: %w", err)
		}
		return value, nil
	case tagError:
		return nil, &ExecError{Type: resp.Type, Message: resp.Str}
	}
	return nil, fmt.Errorf("run response tag %q: %w", resp.Tag, ErrProtocol)
}

// roundTrip registers id, sends message, and blocks for the
// correlated response. The pending entry is removed on every exit
// path: delivery, cancellation, send failure, teardown.
func (s *Session) roundTrip(ctx context.Context, id string, message any) (*response, error) {
	ch, err := s.register(id)
	if err != nil {
		return nil, err
	}
	defer s.deregister(id)

	if err := s.send(message); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("session died while waiting for response: %w", ErrClosed)
		}
		return resp, nil
	case <-ctx.Done():
		// The request is already sent and cannot be retracted; its
		// late reply will be dropped as a stray.
		return nil, ctx.Err()
	}
}

// Ping round-trips an echo through the companion and returns the
// elapsed time.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	id := s.nextID()
	start := s.clock.Now()
	resp, err := s.roundTrip(ctx, id, echoRequest{Tag: tagEcho, ID: id})
	if err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	if resp.Tag != tagEcho {
		return 0, fmt.Errorf("ping response tag %q: %w", resp.Tag, ErrProtocol)
	}
	return s.clock.Now().Sub(start), nil
}

// PingAfter asks the companion to hold the echo for delay before
// answering. Overlapped with Ping it shows a slow request not blocking
// the companion's message loop.
func (s *Session) PingAfter(ctx context.Context, delay time.Duration) (time.Duration, error) {
	id := s.nextID()
	start := s.clock.Now()
	resp, err := s.roundTrip(ctx, id, sleepEchoRequest{Tag: tagSleepEcho, ID: id, Sleep: delay.Seconds()})
	if err != nil {
		return 0, fmt.Errorf("delayed ping: %w", err)
	}
	if resp.Tag != tagEcho {
		return 0, fmt.Errorf("delayed ping response tag %q: %w", resp.Tag, ErrProtocol)
	}
	return s.clock.Now().Sub(start), nil
}

var (
	defaultMu      sync.Mutex
	defaultSession *Session
)

// Default returns the process-wide session, starting one with a zero
// Config on first use or after the previous one died.
func Default(ctx context.Context) (*Session, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSession != nil && defaultSession.IsOpen() {
		return defaultSession, nil
	}
	s, err := Start(ctx, Config{})
	if err != nil {
		return nil, err
	}
	defaultSession = s
	return s, nil
}

// SetDefault replaces the process-wide session and returns the
// previous one, which the caller still owns. Tests use it to point the
// package-level Run at a controlled session.
func SetDefault(s *Session) *Session {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	previous := defaultSession
	defaultSession = s
	return previous
}

// Run executes code on the process-wide default session.
func Run(ctx context.Context, code, scope string, locals map[string]any) (any, error) {
	s, err := Default(ctx)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, code, scope, locals)
}
