// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/bureau-foundation/pybridge/session"
)

// colorEnabled resolves the configured color mode against the output
// terminal. "auto" lights up only for a terminal whose environment
// advertises color.
func colorEnabled(mode string, out *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if !term.IsTerminal(int(out.Fd())) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// printExecError shows a companion exception the way the interpreter
// would end a traceback, highlighted when the terminal supports it.
func printExecError(out io.Writer, color bool, execErr *session.ExecError) {
	text := execErr.Type
	if execErr.Message != "" {
		text += ": " + execErr.Message
	}
	if color {
		if err := quick.Highlight(out, text+"\n", "pytb", "terminal256", "monokai"); err == nil {
			return
		}
	}
	fmt.Fprintln(out, text)
}

// printResult shows a non-nil run result: remote references by their
// interpreter-side repr, everything else as the Go value.
func printResult(ctx context.Context, out io.Writer, value any) {
	if value == nil {
		return
	}
	if ref, ok := value.(*session.Ref); ok {
		text, err := ref.Repr(ctx)
		if err != nil {
			text = ref.String()
		}
		fmt.Fprintln(out, text)
		return
	}
	fmt.Fprintln(out, value)
}
