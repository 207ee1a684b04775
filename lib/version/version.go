// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// Build metadata, overwritten through -ldflags -X at release time. A
// development build or test run reports the defaults.
var (
	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"

	// GitCommit is the short git SHA the binary was built from.
	GitCommit = "unknown"

	// GitDirty is "true" when the working tree carried uncommitted
	// changes at build time.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Info formats the one-line string the binaries print for --version.
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Full extends Info with the Go toolchain and target platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns the bare semantic version.
func Short() string {
	return Version
}

// Commit returns the short git SHA.
func Commit() string {
	return GitCommit
}
