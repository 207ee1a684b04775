// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/pybridge/companion"
	"github.com/bureau-foundation/pybridge/lib/clock"
	"github.com/bureau-foundation/pybridge/lib/transcript"
)

const (
	// DefaultStartupTimeout bounds the wait for the companion's
	// handshake line.
	DefaultStartupTimeout = 30 * time.Second

	// DefaultShutdownGrace is how long Close waits for the companion
	// to exit on its own before killing its process group.
	DefaultShutdownGrace = 5 * time.Second
)

// Config configures a session. The zero value launches "python3" from
// PATH with the embedded companion script and default timeouts.
type Config struct {
	// Python is the interpreter executable, resolved via PATH when
	// not absolute. Default "python3".
	Python string

	// Args are extra interpreter arguments, inserted before the "-"
	// that makes the interpreter read its program from stdin.
	Args []string

	// Script is the path of a companion script to run instead of the
	// embedded one. The file is read once at Start and fed over stdin
	// like the embedded script.
	Script string

	// Env entries (KEY=VALUE) are appended to the inherited
	// environment. The interpreter inherits the parent environment so
	// virtualenvs and PYTHONPATH work unmodified.
	Env []string

	// Debug sets PYBRIDGE_DEBUG=1, turning on the companion's stderr
	// diagnostics.
	Debug bool

	// StartupTimeout bounds the handshake wait. Zero means
	// DefaultStartupTimeout.
	StartupTimeout time.Duration

	// ShutdownGrace is how long Close waits for the companion to exit
	// before SIGKILL. Zero means DefaultShutdownGrace.
	ShutdownGrace time.Duration

	// Stdout receives companion stdout after the handshake line, so
	// print() in submitted code stays visible. Default os.Stdout.
	Stdout io.Writer

	// Stderr receives companion stderr. Default os.Stderr.
	Stderr io.Writer

	// Transcript, when set, records every protocol line and drained
	// stdout line. The caller keeps ownership and closes it after the
	// session is done.
	Transcript *transcript.Writer

	// Logger receives structured log output. If nil, slog.Default()
	// is used. Per-message events are logged at Debug level;
	// lifecycle events at Info.
	Logger *slog.Logger

	// Clock is the time source for the startup timeout, the shutdown
	// grace, and Ping measurements. Default clock.Real(). Tests
	// inject clock.Fake().
	Clock clock.Clock
}

// Session is a handle on one companion interpreter process and the
// socket to it. Safe for concurrent use; Run calls from any number of
// goroutines multiplex over the one socket.
type Session struct {
	cmd        *exec.Cmd
	conn       net.Conn
	clock      clock.Clock
	logger     *slog.Logger
	grace      time.Duration
	transcript *transcript.Writer

	// writeMu serializes whole lines onto the socket.
	writeMu sync.Mutex

	lastID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[string]chan *response
	dead      bool

	open atomic.Bool

	// drainDone closes when companion stdout reaches EOF, procDone
	// when the process is reaped. waitErr is written before procDone
	// closes.
	drainDone chan struct{}
	procDone  chan struct{}
	waitErr   error

	closeOnce sync.Once
	closeErr  error

	teardownOnce sync.Once
}

// handshake is the single line the companion prints on stdout at
// startup.
type handshake struct {
	Status string `json:"status"`
	Addr   string `json:"addr"`
	Port   int    `json:"port"`
	Msg    string `json:"msg"`
}

// Start launches the interpreter, waits for its handshake, dials the
// announced loopback port, and starts the session's background loops.
// ctx bounds startup only; the session outlives it. Every failure path
// terminates and reaps the interpreter before returning, so a failed
// Start never leaks a process.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	script := companion.Script()
	digest := companion.Digest()
	if cfg.Script != "" {
		data, err := os.ReadFile(cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("reading companion script override: %w", err)
		}
		script = data
		digest = companion.DigestOf(data)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	startupTimeout := cfg.StartupTimeout
	if startupTimeout == 0 {
		startupTimeout = DefaultStartupTimeout
	}
	grace := cfg.ShutdownGrace
	if grace == 0 {
		grace = DefaultShutdownGrace
	}

	args := append(append([]string(nil), cfg.Args...), "-")
	cmd := exec.Command(python, args...)
	cmd.Stdin = bytes.NewReader(script)
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), cfg.Env...)
	if cfg.Debug {
		cmd.Env = append(cmd.Env, "PYBRIDGE_DEBUG=1")
	}
	// Own process group, so shutdown can kill the interpreter and
	// anything it spawned with one signal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting interpreter %s: %w", python, err)
	}

	// The handshake read runs in a goroutine so the wait can be
	// bounded. The channel is buffered: if the timeout wins, the
	// reader still gets to finish and exit after the kill below
	// closes the pipe.
	reader := bufio.NewReader(stdoutPipe)
	type readResult struct {
		line []byte
		err  error
	}
	handshakeCh := make(chan readResult, 1)
	go func() {
		line, err := reader.ReadBytes('\n')
		handshakeCh <- readResult{line, err}
	}()

	var first readResult
	select {
	case first = <-handshakeCh:
	case <-ctx.Done():
		killAndReap(cmd)
		return nil, fmt.Errorf("waiting for interpreter handshake: %w", ctx.Err())
	case <-clk.After(startupTimeout):
		killAndReap(cmd)
		return nil, fmt.Errorf("no handshake from interpreter within %v", startupTimeout)
	}
	if first.err != nil {
		killAndReap(cmd)
		return nil, fmt.Errorf("interpreter exited before handshake: %w", first.err)
	}

	var hello handshake
	if err := json.Unmarshal(first.line, &hello); err != nil {
		killAndReap(cmd)
		return nil, fmt.Errorf("handshake line %q: %w", bytes.TrimSpace(first.line), ErrProtocol)
	}
	switch hello.Status {
	case "READY":
	case "ERROR":
		killAndReap(cmd)
		return nil, fmt.Errorf("interpreter startup failed: %s", hello.Msg)
	default:
		killAndReap(cmd)
		return nil, fmt.Errorf("handshake status %q: %w", hello.Status, ErrProtocol)
	}

	address := net.JoinHostPort(hello.Addr, strconv.Itoa(hello.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		killAndReap(cmd)
		return nil, fmt.Errorf("dialing companion at %s: %w", address, err)
	}

	s := &Session{
		cmd:        cmd,
		conn:       conn,
		clock:      clk,
		logger:     logger,
		grace:      grace,
		transcript: cfg.Transcript,
		pending:    make(map[string]chan *response),
		drainDone:  make(chan struct{}),
		procDone:   make(chan struct{}),
	}
	s.open.Store(true)

	go s.drainLoop(reader, stdout)
	go s.waitLoop()
	go s.receiveLoop()

	logger.Info("companion started",
		"pid", cmd.Process.Pid,
		"addr", address,
		"script_digest", digest,
	)
	return s, nil
}

// killAndReap ends a half-started interpreter. Start's failure paths
// must not leave an orphan running.
func killAndReap(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	_ = cmd.Wait()
}

// Close shuts the session down: a best-effort close notice, socket
// close, then a wait for the process bounded by the shutdown grace,
// escalating to SIGKILL of the process group. Idempotent; later calls
// return the first call's result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.shutdown() })
	return s.closeErr
}

func (s *Session) shutdown() error {
	s.open.Store(false)
	// Best effort: the companion exits on the close notice, and just
	// as readily on seeing the socket close.
	_ = s.send(closeNotice{Tag: tagClose})
	s.teardown()

	select {
	case <-s.procDone:
		s.logger.Info("session closed", "pid", s.cmd.Process.Pid)
		if s.waitErr != nil {
			return fmt.Errorf("companion exit: %w", s.waitErr)
		}
		return nil
	case <-s.clock.After(s.grace):
	}

	s.logger.Warn("companion still running after close, killing process group",
		"pid", s.cmd.Process.Pid,
		"grace", s.grace,
	)
	_ = unix.Kill(-s.cmd.Process.Pid, unix.SIGKILL)
	<-s.procDone
	s.logger.Info("session closed", "pid", s.cmd.Process.Pid)
	return nil
}

// IsOpen reports whether the session can accept calls: the handshake
// completed, the receive loop is running, and the process has not
// exited.
func (s *Session) IsOpen() bool {
	if !s.open.Load() {
		return false
	}
	select {
	case <-s.procDone:
		return false
	default:
		return true
	}
}

// waitLoop reaps the interpreter once its stdout is drained, so Close
// and IsOpen observe process exit through procDone instead of racing
// on cmd.Wait.
func (s *Session) waitLoop() {
	<-s.drainDone
	s.waitErr = s.cmd.Wait()
	close(s.procDone)
	s.logger.Debug("companion exited", "error", s.waitErr)
}

// FreshScope returns a scope name no other caller uses: an isolated
// namespace the companion creates on first reference and keeps for the
// life of the session.
func FreshScope() string {
	return "@" + uuid.NewString()
}
