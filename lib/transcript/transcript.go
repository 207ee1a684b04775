// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript records and replays the protocol traffic of a
// bridge session.
//
// A transcript file starts with a uvarint-length-prefixed CBOR header,
// followed by a CBOR sequence of entries. The header is never
// compressed, so tooling can identify a file without knowing its
// compression; the entry stream is compressed with the algorithm the
// header names. Each entry carries one raw protocol line with its
// direction and timestamp, so a replayed transcript reproduces the
// session byte for byte.
package transcript

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/pybridge/lib/clock"
	"github.com/bureau-foundation/pybridge/lib/codec"
)

// FormatVersion is the transcript format this package reads and
// writes. Readers reject other versions.
const FormatVersion = 1

// maxHeaderSize bounds the header length prefix, so a corrupt file
// cannot make the reader allocate gigabytes.
const maxHeaderSize = 1 << 16

// Compression names the algorithm applied to the entry stream.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

// ParseCompression maps a user-supplied name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case CompressionNone, CompressionLZ4, CompressionZstd:
		return Compression(name), nil
	}
	return "", fmt.Errorf("unknown transcript compression %q (want none, lz4, or zstd)", name)
}

// Direction marks which half of the bridge produced a line.
type Direction uint8

const (
	// DirectionSent lines travel host to interpreter.
	DirectionSent Direction = 1
	// DirectionReceived lines travel interpreter to host.
	DirectionReceived Direction = 2
	// DirectionStdout lines are interpreter stdout drained after the
	// handshake; diagnostics, not protocol traffic.
	DirectionStdout Direction = 3
)

func (d Direction) String() string {
	switch d {
	case DirectionSent:
		return "sent"
	case DirectionReceived:
		return "received"
	case DirectionStdout:
		return "stdout"
	}
	return fmt.Sprintf("unknown(%d)", uint8(d))
}

// Header describes the session a transcript belongs to. Written once
// at the start of the file.
type Header struct {
	// Version is the transcript format version. NewWriter fills it.
	Version int `cbor:"version"`

	// Compression names the algorithm the entry stream is compressed
	// with. NewWriter fills it.
	Compression string `cbor:"compression"`

	// SessionID is the identifier the session minted at startup.
	SessionID string `cbor:"session_id,omitempty"`

	// CreatedUnixMS is the wall-clock start of the recording.
	CreatedUnixMS int64 `cbor:"created_ms"`

	// Interpreter is the interpreter command the session launched.
	Interpreter string `cbor:"interpreter,omitempty"`

	// ScriptDigest pins the companion script revision.
	ScriptDigest string `cbor:"script_digest,omitempty"`
}

// Entry is one recorded protocol line.
type Entry struct {
	// AtUnixMS is the wall-clock time the line was recorded.
	AtUnixMS int64 `cbor:"at_ms"`

	// Direction marks the line's producer.
	Direction Direction `cbor:"dir"`

	// Line is the raw JSON protocol line without its trailing newline.
	Line []byte `cbor:"line"`
}

// Writer appends entries to a transcript stream. Safe for concurrent
// use; the bridge's send and receive paths record from different
// goroutines.
type Writer struct {
	mu         sync.Mutex
	clock      clock.Clock
	compressor io.WriteCloser
	encoder    *codec.Encoder
	closed     bool
}

// NewWriter writes the header to w and returns a Writer recording
// through the chosen compression. The caller keeps ownership of w;
// Close flushes the compression stream but does not close w.
func NewWriter(w io.Writer, header Header, compression Compression) (*Writer, error) {
	return newWriter(w, header, compression, clock.Real())
}

func newWriter(w io.Writer, header Header, compression Compression, clk clock.Clock) (*Writer, error) {
	header.Version = FormatVersion
	header.Compression = string(compression)
	if header.CreatedUnixMS == 0 {
		header.CreatedUnixMS = clk.Now().UnixMilli()
	}

	headerBytes, err := codec.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encode transcript header: %w", err)
	}
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(headerBytes)))
	if _, err := w.Write(prefix[:n]); err != nil {
		return nil, fmt.Errorf("write transcript header: %w", err)
	}
	if _, err := w.Write(headerBytes); err != nil {
		return nil, fmt.Errorf("write transcript header: %w", err)
	}

	writer := &Writer{clock: clk}
	switch compression {
	case CompressionNone:
		writer.encoder = codec.NewEncoder(w)
	case CompressionLZ4:
		compressor := lz4.NewWriter(w)
		writer.compressor = compressor
		writer.encoder = codec.NewEncoder(compressor)
	case CompressionZstd:
		compressor, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("initialize zstd stream: %w", err)
		}
		writer.compressor = compressor
		writer.encoder = codec.NewEncoder(compressor)
	default:
		return nil, fmt.Errorf("unknown transcript compression %q", compression)
	}
	return writer, nil
}

// Record appends one protocol line. The line is serialized before
// Record returns, so the caller may reuse the slice.
func (w *Writer) Record(direction Direction, line []byte) error {
	switch direction {
	case DirectionSent, DirectionReceived, DirectionStdout:
	default:
		return fmt.Errorf("invalid transcript direction %d", direction)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("transcript writer is closed")
	}
	entry := Entry{
		AtUnixMS:  w.clock.Now().UnixMilli(),
		Direction: direction,
		Line:      line,
	}
	if err := w.encoder.Encode(entry); err != nil {
		return fmt.Errorf("record transcript entry: %w", err)
	}
	return nil
}

// Close flushes the compression stream. Idempotent. Records after
// Close fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			return fmt.Errorf("flush transcript stream: %w", err)
		}
	}
	return nil
}

// Reader iterates a transcript stream.
type Reader struct {
	header      Header
	decoder     *codec.Decoder
	zstdDecoder *zstd.Decoder
}

// NewReader reads the header from r and prepares to iterate entries.
// Call Close when done to release decompression resources.
func NewReader(r io.Reader) (*Reader, error) {
	buffered := bufio.NewReader(r)

	length, err := binary.ReadUvarint(buffered)
	if err != nil {
		return nil, fmt.Errorf("read transcript header length: %w", err)
	}
	if length > maxHeaderSize {
		return nil, fmt.Errorf("transcript header claims %d bytes, limit is %d", length, maxHeaderSize)
	}
	headerBytes := make([]byte, length)
	if _, err := io.ReadFull(buffered, headerBytes); err != nil {
		return nil, fmt.Errorf("read transcript header: %w", err)
	}

	var header Header
	if err := codec.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("decode transcript header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("transcript format version %d is not supported (want %d)",
			header.Version, FormatVersion)
	}

	reader := &Reader{header: header}
	switch Compression(header.Compression) {
	case CompressionNone:
		reader.decoder = codec.NewDecoder(buffered)
	case CompressionLZ4:
		reader.decoder = codec.NewDecoder(lz4.NewReader(buffered))
	case CompressionZstd:
		decompressor, err := zstd.NewReader(buffered, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("initialize zstd stream: %w", err)
		}
		reader.zstdDecoder = decompressor
		reader.decoder = codec.NewDecoder(decompressor)
	default:
		return nil, fmt.Errorf("unknown transcript compression %q", header.Compression)
	}
	return reader, nil
}

// Header returns the transcript header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next entry. io.EOF marks a clean end of stream.
func (r *Reader) Next() (Entry, error) {
	var entry Entry
	if err := r.decoder.Decode(&entry); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("decode transcript entry: %w", err)
	}
	return entry, nil
}

// Close releases decompression resources. Safe to call more than once.
func (r *Reader) Close() {
	if r.zstdDecoder != nil {
		r.zstdDecoder.Close()
		r.zstdDecoder = nil
	}
}
