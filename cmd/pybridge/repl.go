// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bureau-foundation/pybridge/lib/version"
	"github.com/bureau-foundation/pybridge/session"
)

// replWrapper runs one submission: expressions evaluate and report
// their repr, anything else executes as statements. Both paths run
// against the scope's globals so assignments persist across
// submissions.
const replWrapper = `try:
    code = compile(source, "<repl>", "eval")
except SyntaxError:
    exec(compile(source, "<repl>", "exec"), globals())
else:
    value = eval(code, globals())
    if value is not None:
        pb.ret(repr(value))
`

// runREPL is the interactive prompt: one line per submission, with a
// line ending in ":" or "\" opening a block that a blank line closes.
func runREPL(ctx context.Context, s *session.Session, scope string, locals map[string]any, color bool) error {
	pythonVersion := "unknown"
	if value, err := s.Run(ctx, "import sys; pb.ret(sys.version.split()[0])", scope, nil); err == nil {
		if text, ok := value.(string); ok {
			pythonVersion = text
		}
	}
	fmt.Printf("pybridge %s (python %s) scope %s\n", version.Short(), pythonVersion, scopeLabel(scope))
	fmt.Println("ctrl-D or exit to leave; pb.ret_ref(value) keeps a value interpreter-side")

	if len(locals) > 0 {
		if _, err := s.Run(ctx, "globals().update(values)", scope, map[string]any{"values": locals}); err != nil {
			return fmt.Errorf("seeding manifest locals: %w", err)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var block []string
	for {
		if len(block) == 0 {
			fmt.Print(">>> ")
		} else {
			fmt.Print("... ")
		}
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := scanner.Text()

		if len(block) > 0 {
			if strings.TrimSpace(line) != "" {
				block = append(block, line)
				continue
			}
			source := strings.Join(block, "\n")
			block = nil
			if err := submit(ctx, s, scope, source, color); err != nil {
				return replExit(err)
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch trimmed {
		case "":
			continue
		case "exit", "exit()", "quit", "quit()":
			return nil
		}
		if tail := strings.TrimRight(line, " \t"); strings.HasSuffix(tail, ":") || strings.HasSuffix(tail, "\\") {
			block = []string{line}
			continue
		}
		if err := submit(ctx, s, scope, line, color); err != nil {
			return replExit(err)
		}
	}
	return scanner.Err()
}

// submit runs one REPL submission and shows its outcome. Companion
// exceptions print and the prompt continues; transport-level failures
// propagate and end the prompt.
func submit(ctx context.Context, s *session.Session, scope, source string, color bool) error {
	value, err := s.Run(ctx, replWrapper, scope, map[string]any{"source": source})
	var execErr *session.ExecError
	if errors.As(err, &execErr) {
		printExecError(os.Stderr, color, execErr)
		return nil
	}
	if err != nil {
		return err
	}
	printResult(ctx, os.Stdout, value)
	return nil
}

// replExit maps an interrupt to a quiet exit; everything else is a
// real failure.
func replExit(err error) error {
	if errors.Is(err, context.Canceled) {
		fmt.Println()
		return nil
	}
	return err
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "__main__"
	}
	return scope
}
