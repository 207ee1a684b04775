// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// pybridge-probe checks that a companion interpreter can be launched
// and spoken to: it performs the handshake, measures a burst of echo
// round-trips, and verifies concurrent dispatch by overlapping an echo
// with a pending sleep-echo. Any failure exits non-zero, so the probe
// doubles as a health check for configured interpreters.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pybridge/lib/config"
	"github.com/bureau-foundation/pybridge/lib/version"
	"github.com/bureau-foundation/pybridge/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFlag  string
		pythonFlag  string
		countFlag   int
		sleepFlag   time.Duration
		verboseFlag bool
	)

	flagSet := pflag.NewFlagSet("pybridge-probe", pflag.ContinueOnError)
	flagSet.StringVar(&configFlag, "config", "", "config file path (overrides PYBRIDGE_CONFIG)")
	flagSet.StringVar(&pythonFlag, "python", "", "interpreter executable (overrides config)")
	flagSet.IntVar(&countFlag, "count", 10, "echo round-trips to measure")
	flagSet.DurationVar(&sleepFlag, "sleep", time.Second, "delay for the overlapped sleep-echo")
	flagSet.BoolVar(&verboseFlag, "verbose", false, "log per-message protocol activity")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("pybridge-probe %s\n", version.Full())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if countFlag < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", countFlag)
	}
	if sleepFlag <= 0 {
		return fmt.Errorf("--sleep must be positive, got %s", sleepFlag)
	}

	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	if pythonFlag != "" {
		cfg.Interpreter.Command = pythonFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	interpreter, err := cfg.InterpreterPath()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionConfig := session.Config{
		Python:         interpreter,
		Args:           cfg.Interpreter.Args,
		Script:         cfg.Interpreter.Script,
		Env:            cfg.Interpreter.Env,
		Debug:          cfg.Interpreter.Debug,
		StartupTimeout: cfg.StartupTimeout(),
		ShutdownGrace:  cfg.ShutdownGrace(),
		Logger:         logger,
	}

	launchStart := time.Now()
	s, err := session.Start(ctx, sessionConfig)
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Printf("handshake: %s ready in %s\n", sessionConfig.Python, time.Since(launchStart).Round(time.Millisecond))

	latencies := make([]time.Duration, 0, countFlag)
	for i := range countFlag {
		elapsed, err := s.Ping(ctx)
		if err != nil {
			return fmt.Errorf("echo %d of %d: %w", i+1, countFlag, err)
		}
		logger.Debug("echo", "round", i+1, "elapsed", elapsed)
		latencies = append(latencies, elapsed)
	}
	shortest, mean, longest := summarize(latencies)
	fmt.Printf("echo: %d round-trips, min %s, mean %s, max %s\n",
		countFlag, shortest, mean, longest)

	// A slow request must not block the companion's message loop: an
	// echo sent while a sleep-echo is pending has to come back first.
	type delayedOutcome struct {
		elapsed time.Duration
		err     error
	}
	delayed := make(chan delayedOutcome, 1)
	go func() {
		elapsed, err := s.PingAfter(ctx, sleepFlag)
		delayed <- delayedOutcome{elapsed, err}
	}()
	time.Sleep(sleepFlag / 10)
	overlapped, err := s.Ping(ctx)
	if err != nil {
		return fmt.Errorf("echo during pending sleep-echo: %w", err)
	}
	outcome := <-delayed
	if outcome.err != nil {
		return fmt.Errorf("sleep-echo: %w", outcome.err)
	}
	if outcome.elapsed < sleepFlag {
		return fmt.Errorf("sleep-echo answered in %s, before its %s delay", outcome.elapsed, sleepFlag)
	}
	if overlapped >= outcome.elapsed {
		return errors.New("echo waited behind the pending sleep-echo; companion dispatch is serialized")
	}
	fmt.Printf("sleep-echo: answered after %s with an overlapped echo in %s\n",
		outcome.elapsed.Round(time.Millisecond), overlapped)

	if err := s.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	fmt.Println("ok")
	return nil
}

func summarize(latencies []time.Duration) (shortest, mean, longest time.Duration) {
	shortest = latencies[0]
	longest = latencies[0]
	var total time.Duration
	for _, latency := range latencies {
		if latency < shortest {
			shortest = latency
		}
		if latency > longest {
			longest = latency
		}
		total += latency
	}
	return shortest, total / time.Duration(len(latencies)), longest
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Check that a companion interpreter launches and answers.

The probe starts a session, measures echo round-trip latency, and
overlaps an echo with a sleeping request to verify the companion
serves requests concurrently. A healthy setup prints latency figures
and "ok"; any failure exits with status 1.

Usage:
  pybridge-probe [flags]

Examples:
  # Probe the default python3 on PATH
  pybridge-probe

  # Probe a virtualenv interpreter with a longer burst
  pybridge-probe --python .venv/bin/python3 --count 100

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
