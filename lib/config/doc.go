// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the pybridge
// binaries.
//
// Configuration is loaded from a single file specified by either the
// PYBRIDGE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. With neither set, [Load]
// returns [Default], so the binaries work without any file at all.
//
// The file has four sections mirroring the exported structs:
// interpreter (command, arguments, script override, extra
// environment), session (startup timeout, shutdown grace, default
// scope), transcript (recording directory and compression), and repl
// (color mode). Every field is optional; zero values fall back to the
// defaults at load time. Path fields expand ${HOME} and
// ${VAR:-default} patterns after loading; no other environment
// variables affect config values.
//
// Key exports:
//
//   - [Config] -- master struct with Interpreter, Session, Transcript, REPL
//   - [Default] -- returns a Config with the stock python3 settings
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- collects every complaint, not just the first
//
// This package depends on no other pybridge packages.
package config
