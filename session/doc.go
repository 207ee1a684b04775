// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session launches and supervises a companion Python
// interpreter and executes code in it.
//
// [Start] spawns the interpreter with the embedded companion program on
// stdin, waits for the one-line handshake announcing the loopback port
// the companion is listening on, and dials it. Everything after the
// handshake is newline-delimited JSON on that socket, multiplexed by
// correlation id: any number of goroutines can issue [Session.Run]
// calls against one session concurrently, and each blocks only for its
// own response.
//
// Results come back as native Go values per the wire tag table in
// package wire: unbounded integers as int or *big.Int, rationals as
// *big.Rat, containers as slices and maps, binary payloads as
// wire.Buffer, wire.NDArray, and wire.Media. Values the wire format
// cannot express arrive as a [Ref], a proxy handle whose attribute,
// index, and call operations run in the companion. The companion
// retains the referent until the Ref is released, explicitly or by
// garbage collection of the handle.
//
// A session that loses its socket or its process is dead: in-flight
// calls fail with an error wrapping [ErrClosed], IsOpen reports false,
// and the caller starts a fresh session. There is no reconnection.
//
//	s, err := session.Start(ctx, session.Config{})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	v, err := s.Run(ctx, "pb.ret(6 * 7)", "", nil)
//
// The package-level [Run] uses a lazily started process-wide default
// session for one-off scripting use.
package session
