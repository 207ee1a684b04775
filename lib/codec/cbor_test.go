// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// sampleRecord is a representative transcript-style record using cbor
// struct tags (the convention for purely-internal types).
type sampleRecord struct {
	Kind  string `cbor:"kind"`
	Scope string `cbor:"scope,omitempty"`
	Seq   int    `cbor:"seq"`
}

// sampleDualRecord uses json struct tags (the convention for types
// that serve both JSON and CBOR, relying on fxamacker's fallback).
type sampleDualRecord struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRecord{
		Kind:  "run",
		Scope: "@plot",
		Seq:   42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	record := sampleRecord{
		Kind:  "result",
		Scope: "__main__",
		Seq:   7,
	}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}

	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	records := []sampleRecord{
		{Kind: "run", Scope: "@a", Seq: 1},
		{Kind: "result", Scope: "@a", Seq: 2},
		{Kind: "close", Seq: 0},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range records {
		var got sampleRecord
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode record %d: %v", i, err)
		}
		if got != want {
			t.Errorf("record %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	// Types with json tags (no cbor tags) should encode/decode
	// correctly through our modes, using json tag names as CBOR
	// map keys.
	original := sampleDualRecord{Version: 3, Name: "transcript"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleDualRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	// A zero-value omitempty field should not appear in output.
	withScope := sampleRecord{Kind: "run", Scope: "@x", Seq: 1}
	withoutScope := sampleRecord{Kind: "run", Seq: 1}

	dataWith, err := Marshal(withScope)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutScope)
	if err != nil {
		t.Fatal(err)
	}

	// The encoding without the scope field should be shorter because
	// the omitted field is not present.
	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var record sampleRecord
	err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &record)
	if err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// Verify that []byte fields encode as CBOR byte strings (major
	// type 2), not text strings. Transcript records carry raw JSON
	// protocol lines this way.
	type envelope struct {
		Line []byte `cbor:"line"`
	}

	original := envelope{Line: []byte(`{"tag":"run","id":"1"}`)}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !bytes.Equal(decoded.Line, original.Line) {
		t.Errorf("byte string roundtrip: got %q, want %q", decoded.Line, original.Line)
	}
}

func TestDecodeIntoAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "run", "seq": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("any-typed decode produced %T, want map[string]any", decoded)
	}
	if fields["kind"] != "run" {
		t.Errorf(`fields["kind"] = %v`, fields["kind"])
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "result"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}

	if !strings.Contains(notation, `"kind"`) {
		t.Errorf("notation %q does not contain \"kind\"", notation)
	}
	if !strings.Contains(notation, `"result"`) {
		t.Errorf("notation %q does not contain \"result\"", notation)
	}
}

func TestDiagnoseFirst(t *testing.T) {
	item1, err := Marshal("hello")
	if err != nil {
		t.Fatalf("Marshal item 1: %v", err)
	}
	item2, err := Marshal(int64(42))
	if err != nil {
		t.Fatalf("Marshal item 2: %v", err)
	}

	var sequence []byte
	sequence = append(sequence, item1...)
	sequence = append(sequence, item2...)

	notation, remaining, err := DiagnoseFirst(sequence)
	if err != nil {
		t.Fatalf("DiagnoseFirst: %v", err)
	}

	if !strings.Contains(notation, `"hello"`) {
		t.Errorf("first item notation %q does not contain \"hello\"", notation)
	}
	if len(remaining) == 0 {
		t.Fatal("expected remaining bytes after first item")
	}

	notation2, remaining2, err := DiagnoseFirst(remaining)
	if err != nil {
		t.Fatalf("DiagnoseFirst second: %v", err)
	}
	if !strings.Contains(notation2, "42") {
		t.Errorf("second item notation %q does not contain \"42\"", notation2)
	}
	if len(remaining2) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining2))
	}
}

func BenchmarkMarshal(b *testing.B) {
	record := sampleRecord{
		Kind:  "run",
		Scope: "@plot",
		Seq:   42,
	}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(record)
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	record := sampleRecord{
		Kind:  "run",
		Scope: "@plot",
		Seq:   42,
	}
	data, err := Marshal(record)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		var decoded sampleRecord
		Unmarshal(data, &decoded)
	}
}
