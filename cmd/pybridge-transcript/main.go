// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// pybridge-transcript inspects session recordings written by the
// bridge when transcripts are configured. "list" summarizes one or
// more files; "dump" replays a file's protocol lines with timestamps
// and directions, or raw for piping into jq.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pybridge/lib/transcript"
	"github.com/bureau-foundation/pybridge/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("subcommand required")
	}

	switch os.Args[1] {
	case "list":
		return runList(os.Args[2:])
	case "dump":
		return runDump(os.Args[2:])
	case "version", "--version":
		fmt.Printf("pybridge-transcript %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: pybridge-transcript <subcommand> [flags] <file>...

Subcommands:
  list      Summarize transcript files (session, interpreter, entry counts)
  dump      Print a transcript's protocol lines
  version   Print version information

Run 'pybridge-transcript <subcommand> --help' for subcommand flags.
`)
}

func runList(args []string) error {
	flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pybridge-transcript list <file>...\n")
		flagSet.SetOutput(os.Stderr)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return errors.New("at least one transcript file required")
	}

	for _, path := range flagSet.Args() {
		summary, err := summarize(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Println(summary)
	}
	return nil
}

// summarize reads the whole file: entry counts and the session span
// live in the compressed stream, not the header.
func summarize(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	reader, err := transcript.NewReader(file)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var (
		entries     int
		lastUnixMS  int64
		byDirection [4]int
	)
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("entry %d: %w", entries+1, err)
		}
		entries++
		lastUnixMS = entry.AtUnixMS
		if int(entry.Direction) < len(byDirection) {
			byDirection[entry.Direction]++
		}
	}

	header := reader.Header()
	created := time.UnixMilli(header.CreatedUnixMS).UTC()
	span := time.Duration(0)
	if entries > 0 && lastUnixMS > header.CreatedUnixMS {
		span = time.Duration(lastUnixMS-header.CreatedUnixMS) * time.Millisecond
	}
	return fmt.Sprintf("%s  session %s  %s  %s  %d entries (%d sent, %d received, %d stdout)  %s",
		created.Format(time.RFC3339), header.SessionID, header.Interpreter,
		header.Compression, entries,
		byDirection[transcript.DirectionSent],
		byDirection[transcript.DirectionReceived],
		byDirection[transcript.DirectionStdout],
		span.Round(time.Millisecond)), nil
}

func runDump(args []string) error {
	var (
		directionFlag string
		rawFlag       bool
	)
	flagSet := pflag.NewFlagSet("dump", pflag.ContinueOnError)
	flagSet.StringVar(&directionFlag, "direction", "", "show only lines with this direction: sent, received, or stdout")
	flagSet.BoolVar(&rawFlag, "raw", false, "print bare protocol lines without timestamps")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pybridge-transcript dump [flags] <file>\n")
		flagSet.SetOutput(os.Stderr)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return errors.New("exactly one transcript file required")
	}
	var only transcript.Direction
	if directionFlag != "" {
		parsed, err := parseDirection(directionFlag)
		if err != nil {
			return err
		}
		only = parsed
	}

	path := flagSet.Arg(0)
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, err := transcript.NewReader(file)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer reader.Close()

	header := reader.Header()
	if !rawFlag {
		fmt.Printf("# session %s  interpreter %s  created %s\n",
			header.SessionID, header.Interpreter,
			time.UnixMilli(header.CreatedUnixMS).UTC().Format(time.RFC3339))
		if header.ScriptDigest != "" {
			fmt.Printf("# script digest %s\n", header.ScriptDigest)
		}
	}

	entryNumber := 0
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: entry %d: %w", path, entryNumber+1, err)
		}
		entryNumber++
		if only != 0 && entry.Direction != only {
			continue
		}
		if rawFlag {
			fmt.Printf("%s\n", entry.Line)
			continue
		}
		at := time.UnixMilli(entry.AtUnixMS).UTC()
		fmt.Printf("%s %-8s %s\n", at.Format("15:04:05.000"), entry.Direction, entry.Line)
	}
}

func parseDirection(name string) (transcript.Direction, error) {
	switch name {
	case "sent":
		return transcript.DirectionSent, nil
	case "received":
		return transcript.DirectionReceived, nil
	case "stdout":
		return transcript.DirectionStdout, nil
	}
	return 0, fmt.Errorf("unknown direction %q (want sent, received, or stdout)", name)
}
