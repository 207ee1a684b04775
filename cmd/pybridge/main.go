// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// pybridge runs Python code through a companion interpreter process.
//
// Three modes, picked by the arguments:
//
// Script mode: a positional argument names a Python file, which runs
// in the companion with its print output passed through. With no
// arguments and a non-terminal stdin, the script is read from stdin.
//
// Snippet mode: -c 'code' runs the snippet. Code marks a result with
// pb.ret(value) or pb.ret_ref(value); a non-nil result prints to
// stdout.
//
// REPL mode: no code argument and a terminal on stdin. Expressions
// auto-print their repr, statements run silently, and a line ending
// in ":" or "\" opens a block that a blank line closes. Each
// invocation gets a fresh private scope unless --scope names another.
//
// Configuration comes from PYBRIDGE_CONFIG or --config (YAML); flags
// override per invocation. With transcript.dir configured, every
// protocol line of the session is recorded for later inspection with
// pybridge-transcript.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/pybridge/lib/config"
	"github.com/bureau-foundation/pybridge/lib/version"
	"github.com/bureau-foundation/pybridge/session"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// silentExit carries an exit code for a failure already shown to the
// user.
type silentExit struct{ code int }

func (e silentExit) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e silentExit) ExitCode() int { return e.code }

func run() error {
	var (
		codeFlag    string
		configFlag  string
		scopeFlag   string
		localsFlag  string
		pythonFlag  string
		colorFlag   string
		debugFlag   bool
		verboseFlag bool
	)

	flagSet := pflag.NewFlagSet("pybridge", pflag.ContinueOnError)
	flagSet.StringVarP(&codeFlag, "code", "c", "", "run this code instead of a script file")
	flagSet.StringVar(&configFlag, "config", "", "config file path (overrides PYBRIDGE_CONFIG)")
	flagSet.StringVar(&scopeFlag, "scope", "", "namespace to run in: a loaded module name, or @name for a private one")
	flagSet.StringVar(&localsFlag, "locals", "", "JSONC file of values made visible to the code as locals")
	flagSet.StringVar(&pythonFlag, "python", "", "interpreter executable (overrides config)")
	flagSet.StringVar(&colorFlag, "color", "", "highlight errors: auto, always, or never (overrides config)")
	flagSet.BoolVar(&debugFlag, "debug", false, "turn on the companion's stderr diagnostics")
	flagSet.BoolVar(&verboseFlag, "verbose", false, "log protocol activity")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other
	// pybridge binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("pybridge %s\n", version.Info())
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

	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	if colorFlag != "" {
		cfg.REPL.Color = colorFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	locals, err := loadLocals(localsFlag)
	if err != nil {
		return err
	}

	args := flagSet.Args()
	if codeFlag != "" && len(args) > 0 {
		return errors.New("-c and a script argument are mutually exclusive")
	}
	if len(args) > 1 {
		return fmt.Errorf("at most one script argument, got %d", len(args))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionConfig := session.Config{
		Python:         cfg.Interpreter.Command,
		Args:           cfg.Interpreter.Args,
		Script:         cfg.Interpreter.Script,
		Env:            cfg.Interpreter.Env,
		Debug:          cfg.Interpreter.Debug || debugFlag,
		StartupTimeout: cfg.StartupTimeout(),
		ShutdownGrace:  cfg.ShutdownGrace(),
		Logger:         logger,
	}
	if pythonFlag != "" {
		sessionConfig.Python = pythonFlag
	}

	finishTranscript, err := attachTranscript(cfg, &sessionConfig, logger)
	if err != nil {
		return err
	}
	defer finishTranscript()

	scope := cfg.Session.DefaultScope
	scopeSet := flagSet.Changed("scope")
	if scopeSet {
		scope = scopeFlag
	}

	interactive := codeFlag == "" && len(args) == 0 && term.IsTerminal(int(os.Stdin.Fd()))
	color := colorEnabled(cfg.REPL.Color, os.Stdout)

	var source string
	switch {
	case codeFlag != "":
		source = codeFlag
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading script: %w", err)
		}
		source = string(data)
	case !interactive:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		source = string(data)
	}

	s, err := session.Start(ctx, sessionConfig)
	if err != nil {
		return err
	}
	defer s.Close()

	if interactive {
		if !scopeSet {
			scope = session.FreshScope()
		}
		return runREPL(ctx, s, scope, locals, color)
	}
	return runSource(ctx, s, source, scope, locals, color)
}

// runSource runs one body of code and reports its outcome: the result
// on stdout, a companion exception on stderr with exit status 1.
func runSource(ctx context.Context, s *session.Session, source, scope string, locals map[string]any, color bool) error {
	value, err := s.Run(ctx, source, scope, locals)
	var execErr *session.ExecError
	if errors.As(err, &execErr) {
		printExecError(os.Stderr, color, execErr)
		return silentExit{code: 1}
	}
	if err != nil {
		return err
	}
	printResult(ctx, os.Stdout, value)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Run Python code through a companion interpreter.

With a script argument or -c, the code runs once and the process
exits. With neither and a terminal on stdin, an interactive prompt
opens in a fresh private scope. Code returns a value to the Go side
with pb.ret(value), or keeps it interpreter-side as a reference with
pb.ret_ref(value).

Usage:
  pybridge [flags] [script.py]
  pybridge -c 'pb.ret(6 * 7)'
  pybridge

Examples:
  # Run a script with values from a manifest visible as locals
  pybridge --locals params.jsonc train.py

  # One snippet against a specific virtualenv interpreter
  pybridge --python .venv/bin/python3 -c 'import sys; pb.ret(sys.version)'

  # Interactive prompt sharing the __main__ namespace
  pybridge --scope ""

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
