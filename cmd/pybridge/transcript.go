// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bureau-foundation/pybridge/companion"
	"github.com/bureau-foundation/pybridge/lib/config"
	"github.com/bureau-foundation/pybridge/lib/transcript"
	"github.com/bureau-foundation/pybridge/session"
)

// attachTranscript wires a transcript recording into the session
// config when one is configured. The returned func finishes the
// recording after the session is done.
func attachTranscript(cfg *config.Config, sessionConfig *session.Config, logger *slog.Logger) (func(), error) {
	if cfg.Transcript.Dir == "" {
		return func() {}, nil
	}
	compression, err := transcript.ParseCompression(cfg.Transcript.Compression)
	if err != nil {
		return nil, err
	}

	digest := companion.Digest()
	if sessionConfig.Script != "" {
		data, err := os.ReadFile(sessionConfig.Script)
		if err != nil {
			return nil, fmt.Errorf("reading companion script override: %w", err)
		}
		digest = companion.DigestOf(data)
	}

	sessionID := uuid.NewString()
	path := filepath.Join(cfg.Transcript.Dir, sessionID+".pbt")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating transcript: %w", err)
	}
	writer, err := transcript.NewWriter(file, transcript.Header{
		SessionID:    sessionID,
		Interpreter:  sessionConfig.Python,
		ScriptDigest: digest,
	}, compression)
	if err != nil {
		file.Close()
		return nil, err
	}

	sessionConfig.Transcript = writer
	logger.Info("recording transcript", "path", path)
	return func() {
		if err := writer.Close(); err != nil {
			logger.Warn("closing transcript", "error", err)
		}
		if err := file.Close(); err != nil {
			logger.Warn("closing transcript file", "error", err)
		}
	}, nil
}
