// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/bureau-foundation/pybridge/lib/transcript"
)

// Protocol tags. Every message is one JSON object on one line.
const (
	tagRun       = "run"
	tagResult    = "result"
	tagError     = "error"
	tagEcho      = "echo"
	tagSleepEcho = "sleep-echo"
	tagDelref    = "delref"
	tagClose     = "close"
)

type runRequest struct {
	Tag  string `json:"tag"`
	ID   string `json:"id"`
	Code string `json:"code"`
	// Scope names the namespace the code runs in: empty for __main__,
	// "@name" for a bridge-private namespace.
	Scope string `json:"scope"`
	// Locals must stay nil (not empty) when the caller passed nil;
	// JSON null and {} mean different things to the companion.
	Locals map[string]any `json:"locals"`
}

type echoRequest struct {
	Tag string `json:"tag"`
	ID  string `json:"id"`
}

type sleepEchoRequest struct {
	Tag   string  `json:"tag"`
	ID    string  `json:"id"`
	Sleep float64 `json:"sleep"`
}

type delrefNotice struct {
	Tag string `json:"tag"`
	Ref string `json:"ref"`
}

type closeNotice struct {
	Tag string `json:"tag"`
}

// response is the envelope of one companion-to-host line. Which fields
// carry meaning depends on Tag: result for "result", type/str for
// "error", payload for "echo".
type response struct {
	ID      string          `json:"id"`
	Tag     string          `json:"tag"`
	Result  json.RawMessage `json:"result"`
	Type    string          `json:"type"`
	Str     string          `json:"str"`
	Payload json.RawMessage `json:"payload"`
}

// nextID mints a correlation id. Ids stay unique for the life of the
// session, which is stricter than the protocol's unique-while-pending
// requirement and free to provide.
func (s *Session) nextID() string {
	return strconv.FormatUint(s.lastID.Add(1), 10)
}

// send writes one message as a single JSON line. The write lock keeps
// concurrent senders from interleaving partial lines.
func (s *Session) send(message any) error {
	line, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	line = append(line, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(line); err != nil {
		return fmt.Errorf("writing to companion: %w", err)
	}
	s.record(transcript.DirectionSent, line)
	return nil
}

// register creates the rendezvous channel for id. Fails once the
// session is torn down, so late callers do not wait on a response that
// can never arrive.
func (s *Session) register(id string) (chan *response, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.dead {
		return nil, ErrClosed
	}
	ch := make(chan *response, 1)
	s.pending[id] = ch
	return ch, nil
}

// deregister drops id's pending entry. Safe when the entry is already
// delivered or the session torn down.
func (s *Session) deregister(id string) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// receiveLoop routes companion lines to their waiting requests. It
// owns delivery: an id is looked up and removed under the map lock, so
// each request sees at most one response and the capacity-1 send can
// never block. Loop exit, whatever the cause, tears the session down
// and fails everything still pending.
func (s *Session) receiveLoop() {
	defer s.teardown()
	reader := bufio.NewReader(s.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("receive loop ended", "error", err)
			}
			return
		}
		s.record(transcript.DirectionReceived, line)

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			s.logger.Warn("dropping unparsable companion line", "error", err)
			continue
		}

		s.pendingMu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.pendingMu.Unlock()

		if !ok {
			// The requester gave up, or never existed. Stray replies
			// are dropped, not errors.
			s.logger.Debug("dropping response for unknown id",
				"id", resp.ID, "tag", resp.Tag)
			continue
		}
		ch <- &resp
	}
}

// teardown moves the session to its terminal state: no new requests,
// socket closed, every pending request failed. Idempotent; runs from
// both receive-loop exit and Close.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.open.Store(false)
		s.conn.Close()

		s.pendingMu.Lock()
		s.dead = true
		for id, ch := range s.pending {
			delete(s.pending, id)
			close(ch)
		}
		s.pendingMu.Unlock()
	})
}

// drainLoop forwards companion stdout after the handshake line, so
// print() in submitted code lands somewhere visible. The handshake is
// the only protocol traffic on stdout; everything here is passthrough.
func (s *Session) drainLoop(reader *bufio.Reader, out io.Writer) {
	defer close(s.drainDone)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			s.record(transcript.DirectionStdout, line)
			if _, writeErr := out.Write(line); writeErr != nil {
				// Keep draining so the companion never blocks on a
				// full pipe.
				out = io.Discard
			}
		}
		if err != nil {
			return
		}
	}
}

// record appends a line to the transcript, when one is configured.
// Transcript failures degrade the recording, never the session.
func (s *Session) record(direction transcript.Direction, line []byte) {
	if s.transcript == nil {
		return
	}
	trimmed := bytes.TrimSuffix(line, []byte("\n"))
	if err := s.transcript.Record(direction, trimmed); err != nil {
		s.logger.Warn("transcript record failed", "error", err)
	}
}
