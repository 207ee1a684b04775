// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/bureau-foundation/pybridge/wire"
)

// marshalLocals converts a locals map for the wire. nil stays nil so
// it encodes as JSON null; an empty map encodes as {}. The companion
// treats the two differently.
func marshalLocals(s *Session, locals map[string]any) (map[string]any, error) {
	if locals == nil {
		return nil, nil
	}
	encoded := make(map[string]any, len(locals))
	for name, value := range locals {
		tree, err := marshalValue(s, value)
		if err != nil {
			return nil, fmt.Errorf("local %q: %w", name, err)
		}
		encoded[name] = tree
	}
	return encoded, nil
}

// marshalValue builds the JSON-ready tree for one outbound value.
// Scalars the wire represents exactly go untagged; everything else is
// tagged. The target session matters only for references, which must
// belong to it.
func marshalValue(s *Session, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case string:
		return v, nil
	case int:
		return marshalInt64(int64(v)), nil
	case int8:
		return marshalInt64(int64(v)), nil
	case int16:
		return marshalInt64(int64(v)), nil
	case int32:
		return marshalInt64(int64(v)), nil
	case int64:
		return marshalInt64(v), nil
	case uint:
		return marshalUint64(uint64(v)), nil
	case uint8:
		return marshalInt64(int64(v)), nil
	case uint16:
		return marshalInt64(int64(v)), nil
	case uint32:
		return marshalInt64(int64(v)), nil
	case uint64:
		return marshalUint64(v), nil
	case *big.Int:
		if v == nil {
			return nil, nil
		}
		if v.IsInt64() {
			return marshalInt64(v.Int64()), nil
		}
		return tagged(wire.TagInt, v.String()), nil
	case float32:
		return taggedFloat(float64(v)), nil
	case float64:
		return taggedFloat(v), nil
	case *big.Rat:
		if v == nil {
			return nil, nil
		}
		return tagged(wire.TagRational, []any{v.Num().String(), v.Denom().String()}), nil
	case []byte:
		return tagged(wire.TagBytes, base64.StdEncoding.EncodeToString(v)), nil
	case wire.Tuple:
		items, err := marshalSequence(s, v)
		if err != nil {
			return nil, err
		}
		return tagged(wire.TagTuple, items), nil
	case wire.Set:
		items, err := marshalSequence(s, v)
		if err != nil {
			return nil, err
		}
		return tagged(wire.TagSet, items), nil
	case wire.Pair:
		first, err := marshalValue(s, v.Key)
		if err != nil {
			return nil, fmt.Errorf("pair key: %w", err)
		}
		second, err := marshalValue(s, v.Value)
		if err != nil {
			return nil, fmt.Errorf("pair value: %w", err)
		}
		return tagged(wire.TagPair, []any{first, second}), nil
	case []any:
		items, err := marshalSequence(s, v)
		if err != nil {
			return nil, err
		}
		return tagged(wire.TagList, items), nil
	case *Ref:
		if v == nil {
			return nil, nil
		}
		if v.session != s {
			return nil, errors.New("reference belongs to a different session")
		}
		if v.released.Load() {
			return nil, fmt.Errorf("reference %s is released", v.id)
		}
		return tagged(wire.TagRef, v.id), nil
	case wire.Opaque:
		// Pass-through values re-encode exactly as they arrived; the
		// payload is a plain JSON tree.
		return tagged(v.Tag, v.Value), nil
	case wire.Buffer, wire.NDArray, wire.Media:
		return nil, fmt.Errorf("%T is a result-only type", value)
	}
	return marshalReflect(s, value)
}

func tagged(tag string, payload any) map[string]any {
	return map[string]any{"t": tag, "v": payload}
}

func marshalInt64(v int64) any {
	if v > -wire.SmallIntLimit && v < wire.SmallIntLimit {
		return v
	}
	return tagged(wire.TagInt, strconv.FormatInt(v, 10))
}

func marshalUint64(v uint64) any {
	if v < wire.SmallIntLimit {
		return v
	}
	return tagged(wire.TagInt, strconv.FormatUint(v, 10))
}

// taggedFloat formats a float as tagged decimal text, with the
// inf/nan spellings the companion's float() accepts.
func taggedFloat(f float64) any {
	var text string
	switch {
	case math.IsInf(f, 1):
		text = "inf"
	case math.IsInf(f, -1):
		text = "-inf"
	case math.IsNaN(f):
		text = "nan"
	default:
		text = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return tagged(wire.TagFloat, text)
}

func marshalSequence(s *Session, items []any) ([]any, error) {
	encoded := make([]any, len(items))
	for i, item := range items {
		tree, err := marshalValue(s, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		encoded[i] = tree
	}
	return encoded, nil
}

// marshalReflect covers the reflective kinds: named scalar types,
// slices, arrays, maps, structs, and pointers.
func marshalReflect(s *Session, value any) (any, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return marshalInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return marshalUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return taggedFloat(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return marshalValue(s, rv.Bytes())
		}
		items := make([]any, rv.Len())
		for i := range rv.Len() {
			tree, err := marshalValue(s, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = tree
		}
		return tagged(wire.TagList, items), nil
	case reflect.Map:
		pairs := make([]any, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := marshalValue(s, iter.Key().Interface())
			if err != nil {
				return nil, fmt.Errorf("map key %v: %w", iter.Key(), err)
			}
			element, err := marshalValue(s, iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("map value for %v: %w", iter.Key(), err)
			}
			pairs = append(pairs, []any{key, element})
		}
		return tagged(wire.TagDict, pairs), nil
	case reflect.Struct:
		return marshalStruct(s, rv)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return marshalValue(s, rv.Elem().Interface())
	}
	return nil, fmt.Errorf("cannot marshal a %T", value)
}

// marshalStruct sends exported fields in declaration order as a dict.
// Python mappings preserve insertion order, so the record's field
// order survives the trip.
func marshalStruct(s *Session, rv reflect.Value) (any, error) {
	structType := rv.Type()
	pairs := make([]any, 0, structType.NumField())
	for i := range structType.NumField() {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		element, err := marshalValue(s, rv.Field(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		pairs = append(pairs, []any{field.Name, element})
	}
	return tagged(wire.TagDict, pairs), nil
}
