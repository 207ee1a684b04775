// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for bridge commands.
//
// Configuration is loaded from a single file specified by:
//   - PYBRIDGE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides. A
// missing file is only an error when one was named; every field has a
// working default.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the bridge commands.
type Config struct {
	// Interpreter configures how the companion interpreter is
	// launched.
	Interpreter InterpreterConfig `yaml:"interpreter"`

	// Session configures session lifecycle timing.
	Session SessionConfig `yaml:"session"`

	// Transcript configures protocol recording.
	Transcript TranscriptConfig `yaml:"transcript"`

	// REPL configures the interactive prompt.
	REPL REPLConfig `yaml:"repl"`
}

// InterpreterConfig configures the companion interpreter process.
type InterpreterConfig struct {
	// Command is the interpreter binary, resolved against PATH when
	// it carries no path separator. Default: python3
	Command string `yaml:"command"`

	// Args are extra arguments passed before the script argument.
	Args []string `yaml:"args"`

	// Script is a path to a companion script that replaces the
	// embedded one. Empty means use the embedded script.
	Script string `yaml:"script"`

	// Env lists extra KEY=VALUE entries for the interpreter's
	// environment.
	Env []string `yaml:"env"`

	// Debug makes the companion log protocol activity to stderr.
	Debug bool `yaml:"debug"`
}

// SessionConfig configures session lifecycle timing. Durations use
// time.ParseDuration syntax.
type SessionConfig struct {
	// StartupTimeout bounds the wait for the interpreter's handshake.
	// Default: 30s
	StartupTimeout string `yaml:"startup_timeout"`

	// ShutdownGrace is how long Close waits for the interpreter to
	// exit before killing its process group. Default: 5s
	ShutdownGrace string `yaml:"shutdown_grace"`

	// DefaultScope is the scope used when a command does not name
	// one. Default: "" (the interpreter's __main__ module)
	DefaultScope string `yaml:"default_scope"`
}

// TranscriptConfig configures protocol recording.
type TranscriptConfig struct {
	// Dir is where transcript files are written. Empty disables
	// recording.
	Dir string `yaml:"dir"`

	// Compression is the transcript entry stream compression:
	// none, lz4, or zstd. Default: zstd
	Compression string `yaml:"compression"`
}

// REPLConfig configures the interactive prompt.
type REPLConfig struct {
	// Color controls output highlighting: auto, always, or never.
	// Default: auto
	Color string `yaml:"color"`
}

// Default returns the default configuration. These defaults are a
// complete working setup; a config file only has to name what it
// changes.
func Default() *Config {
	return &Config{
		Interpreter: InterpreterConfig{
			Command: "python3",
		},
		Session: SessionConfig{
			StartupTimeout: "30s",
			ShutdownGrace:  "5s",
		},
		Transcript: TranscriptConfig{
			Compression: "zstd",
		},
		REPL: REPLConfig{
			Color: "auto",
		},
	}
}

// Load loads configuration from the PYBRIDGE_CONFIG environment
// variable. When the variable is unset, the defaults are returned
// unchanged.
func Load() (*Config, error) {
	configPath := os.Getenv("PYBRIDGE_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values - this ensures deterministic, auditable
// configuration. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// path-valued fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Interpreter.Command = expandVars(c.Interpreter.Command, vars)
	c.Interpreter.Script = expandVars(c.Interpreter.Script, vars)
	c.Transcript.Dir = expandVars(c.Transcript.Dir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Interpreter.Command == "" {
		errs = append(errs, fmt.Errorf("interpreter.command is required"))
	}
	for _, entry := range c.Interpreter.Env {
		if !strings.Contains(entry, "=") {
			errs = append(errs, fmt.Errorf("interpreter.env entry %q is not KEY=VALUE", entry))
		}
	}

	if _, err := time.ParseDuration(c.Session.StartupTimeout); err != nil {
		errs = append(errs, fmt.Errorf("session.startup_timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.Session.ShutdownGrace); err != nil {
		errs = append(errs, fmt.Errorf("session.shutdown_grace: %w", err))
	}

	compressionValues := []string{"none", "lz4", "zstd"}
	if !contains(compressionValues, c.Transcript.Compression) {
		errs = append(errs, fmt.Errorf("transcript.compression must be one of: %v", compressionValues))
	}

	colorValues := []string{"auto", "always", "never"}
	if !contains(colorValues, c.REPL.Color) {
		errs = append(errs, fmt.Errorf("repl.color must be one of: %v", colorValues))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StartupTimeout returns the parsed startup timeout. Call Validate
// first; an unparseable value falls back to the default.
func (c *Config) StartupTimeout() time.Duration {
	return parseDurationOr(c.Session.StartupTimeout, 30*time.Second)
}

// ShutdownGrace returns the parsed shutdown grace. Call Validate
// first; an unparseable value falls back to the default.
func (c *Config) ShutdownGrace() time.Duration {
	return parseDurationOr(c.Session.ShutdownGrace, 5*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	if c.Transcript.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Transcript.Dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Transcript.Dir, err)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// InterpreterPath resolves the interpreter command to an executable
// path. Commands carrying a path separator are used as-is; bare names
// go through PATH lookup.
func (c *Config) InterpreterPath() (string, error) {
	command := c.Interpreter.Command
	if strings.ContainsRune(command, os.PathSeparator) {
		if _, err := os.Stat(command); err != nil {
			return "", fmt.Errorf("interpreter %s: %w", command, err)
		}
		return command, nil
	}

	path, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("interpreter %s not found in PATH", command)
	}
	return path, nil
}
