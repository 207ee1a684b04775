// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/bureau-foundation/pybridge/wire"
)

func TestMarshalValueShapes(t *testing.T) {
	s := &Session{}
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"string", "hello", "hello"},
		{"small int", 5, int64(5)},
		{"small negative int", -(wire.SmallIntLimit - 1), int64(-(wire.SmallIntLimit - 1))},
		{"large int", wire.SmallIntLimit, map[string]any{"t": "int", "v": "1048576"}},
		{"large negative int", -wire.SmallIntLimit, map[string]any{"t": "int", "v": "-1048576"}},
		{"uint8", uint8(7), int64(7)},
		{"large uint64", uint64(math.MaxUint64), map[string]any{"t": "int", "v": "18446744073709551615"}},
		{"small big.Int", big.NewInt(41), int64(41)},
		{"huge big.Int", new(big.Int).Lsh(big.NewInt(1), 80),
			map[string]any{"t": "int", "v": "1208925819614629174706176"}},
		{"float", 1.5, map[string]any{"t": "float", "v": "1.5"}},
		{"float32", float32(0.25), map[string]any{"t": "float", "v": "0.25"}},
		{"positive infinity", math.Inf(1), map[string]any{"t": "float", "v": "inf"}},
		{"negative infinity", math.Inf(-1), map[string]any{"t": "float", "v": "-inf"}},
		{"nan", math.NaN(), map[string]any{"t": "float", "v": "nan"}},
		{"rational", big.NewRat(2, 3), map[string]any{"t": "rational", "v": []any{"2", "3"}}},
		{"bytes", []byte{1, 2, 3}, map[string]any{"t": "bytes", "v": "AQID"}},
		{"list", []any{1, "x"}, map[string]any{"t": "list", "v": []any{int64(1), "x"}}},
		{"tuple", wire.Tuple{1, 2}, map[string]any{"t": "tuple", "v": []any{int64(1), int64(2)}}},
		{"set", wire.Set{"a"}, map[string]any{"t": "set", "v": []any{"a"}}},
		{"pair", wire.Pair{Key: "k", Value: 9},
			map[string]any{"t": "pair", "v": []any{"k", int64(9)}}},
		{"opaque pass-through", wire.Opaque{Tag: "frame", Value: map[string]any{"depth": 3.0}},
			map[string]any{"t": "frame", "v": map[string]any{"depth": 3.0}}},
		{"int slice", []int{1, 2}, map[string]any{"t": "list", "v": []any{int64(1), int64(2)}}},
		{"string map", map[string]int{"a": 1},
			map[string]any{"t": "dict", "v": []any{[]any{"a", int64(1)}}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := marshalValue(s, test.value)
			if err != nil {
				t.Fatalf("marshalValue(%v): %v", test.value, err)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Fatalf("marshalValue(%v) = %#v, want %#v", test.value, got, test.want)
			}
		})
	}
}

func TestMarshalStructSendsExportedFieldsInOrder(t *testing.T) {
	s := &Session{}
	type record struct {
		Beta   int
		Alpha  string
		hidden bool
	}
	got, err := marshalValue(s, record{Beta: 2, Alpha: "a", hidden: true})
	if err != nil {
		t.Fatalf("marshalValue: %v", err)
	}
	want := map[string]any{"t": "dict", "v": []any{
		[]any{"Beta", int64(2)},
		[]any{"Alpha", "a"},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("marshalValue = %#v, want %#v", got, want)
	}
}

func TestMarshalPointerFollowsToValue(t *testing.T) {
	s := &Session{}
	n := 12
	got, err := marshalValue(s, &n)
	if err != nil {
		t.Fatalf("marshalValue: %v", err)
	}
	if got != int64(12) {
		t.Fatalf("marshalValue(&12) = %#v, want 12", got)
	}

	var absent *int
	got, err = marshalValue(s, absent)
	if err != nil {
		t.Fatalf("marshalValue(nil pointer): %v", err)
	}
	if got != nil {
		t.Fatalf("marshalValue(nil pointer) = %#v, want nil", got)
	}
}

func TestMarshalRefEncodesIdentifier(t *testing.T) {
	s := &Session{}
	r := newRef(s, "11")
	got, err := marshalValue(s, r)
	if err != nil {
		t.Fatalf("marshalValue: %v", err)
	}
	want := map[string]any{"t": "ref", "v": "11"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("marshalValue = %#v, want %#v", got, want)
	}
}

func TestMarshalRefRejectsForeignSession(t *testing.T) {
	owner := &Session{}
	other := &Session{}
	r := newRef(owner, "11")
	_, err := marshalValue(other, r)
	if err == nil || !strings.Contains(err.Error(), "different session") {
		t.Fatalf("marshalValue error = %v, want a session-ownership error", err)
	}
}

func TestMarshalRefRejectsReleased(t *testing.T) {
	s := &Session{}
	r := newRef(s, "11")
	r.Release()
	_, err := marshalValue(s, r)
	if err == nil || !strings.Contains(err.Error(), "released") {
		t.Fatalf("marshalValue error = %v, want a released-reference error", err)
	}
}

func TestMarshalRejectsResultOnlyTypes(t *testing.T) {
	s := &Session{}
	for _, value := range []any{wire.Buffer{}, wire.NDArray{}, wire.Media{}} {
		_, err := marshalValue(s, value)
		if err == nil || !strings.Contains(err.Error(), "result-only") {
			t.Fatalf("marshalValue(%T) error = %v, want a result-only rejection", value, err)
		}
	}
}

func TestMarshalRejectsUnsupportedKinds(t *testing.T) {
	s := &Session{}
	_, err := marshalValue(s, make(chan int))
	if err == nil || !strings.Contains(err.Error(), "cannot marshal") {
		t.Fatalf("marshalValue(chan) error = %v", err)
	}
}

func TestRunRequestKeepsNullAndEmptyLocalsApart(t *testing.T) {
	withNil, err := json.Marshal(runRequest{Tag: tagRun, ID: "1", Code: "x = 1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(withNil), `"locals":null`) {
		t.Fatalf("nil locals encoded as %s", withNil)
	}

	withEmpty, err := json.Marshal(runRequest{Tag: tagRun, ID: "1", Code: "x = 1", Locals: map[string]any{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(withEmpty), `"locals":{}`) {
		t.Fatalf("empty locals encoded as %s", withEmpty)
	}
}
