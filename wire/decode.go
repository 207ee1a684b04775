// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
)

// DecodeOptions controls how tagged values materialize.
type DecodeOptions struct {
	// NewRef, when set, is called for every "ref" tag with the
	// interpreter-side identifier and its return value replaces the
	// reference in the decoded tree. When nil, references decode as
	// the passive Ref string type.
	NewRef func(id string) any
}

// Decode parses a JSON-encoded exchange value into its Go
// representation: untagged JSON scalars map directly, tagged objects
// map per the package's tag table, and unknown tags become Opaque
// values. Numbers decode without float round-tripping.
func Decode(data []byte, opts DecodeOptions) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var tree any
	if err := decoder.Decode(&tree); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	return decodeTree(tree, opts)
}

func decodeTree(tree any, opts DecodeOptions) (any, error) {
	switch v := tree.(type) {
	case nil, bool, string:
		return v, nil
	case json.Number:
		return decodeNumber(v)
	case []any:
		return decodeSequence(v, opts)
	case map[string]any:
		tag, ok := v["t"].(string)
		if !ok {
			return decodeObject(v, opts)
		}
		return decodeTagged(tag, v["v"], opts)
	}
	return nil, fmt.Errorf("unexpected JSON value of type %T", tree)
}

func decodeTagged(tag string, payload any, opts DecodeOptions) (any, error) {
	switch tag {
	case TagInt:
		text, ok := payloadText(payload)
		if !ok {
			return nil, fmt.Errorf("int payload is %T, want string", payload)
		}
		return parseIntText(text)

	case TagFloat:
		text, ok := payloadText(payload)
		if !ok {
			return nil, fmt.Errorf("float payload is %T, want string", payload)
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed float %q", text)
		}
		return f, nil

	case TagRational:
		parts, ok := payload.([]any)
		if !ok || len(parts) != 2 {
			return nil, fmt.Errorf("rational payload is %T, want a two-element list", payload)
		}
		return decodeRational(parts[0], parts[1])

	case TagList:
		items, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("list payload is %T, want a list", payload)
		}
		return decodeSequence(items, opts)

	case TagTuple:
		items, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("tuple payload is %T, want a list", payload)
		}
		decoded, err := decodeSequence(items, opts)
		if err != nil {
			return nil, err
		}
		return Tuple(decoded), nil

	case TagSet:
		items, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("set payload is %T, want a list", payload)
		}
		decoded, err := decodeSequence(items, opts)
		if err != nil {
			return nil, err
		}
		return Set(decoded), nil

	case TagDict:
		items, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("dict payload is %T, want a pair list", payload)
		}
		return decodeDict(items, opts)

	case TagPair:
		items, ok := payload.([]any)
		if !ok || len(items) != 2 {
			return nil, fmt.Errorf("pair payload is %T, want a two-element list", payload)
		}
		key, err := decodeTree(items[0], opts)
		if err != nil {
			return nil, fmt.Errorf("pair key: %w", err)
		}
		value, err := decodeTree(items[1], opts)
		if err != nil {
			return nil, fmt.Errorf("pair value: %w", err)
		}
		return Pair{Key: key, Value: value}, nil

	case TagBytes:
		text, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("bytes payload is %T, want a base64 string", payload)
		}
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("decode bytes: %w", err)
		}
		return decoded, nil

	case TagRef:
		id, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("ref payload is %T, want a string identifier", payload)
		}
		if opts.NewRef != nil {
			return opts.NewRef(id), nil
		}
		return Ref(id), nil

	case TagBuffer:
		return decodeBuffer(payload)

	case TagNDArray:
		return decodeArray(payload)

	case TagMedia:
		return decodeMedia(payload)
	}

	value, err := plainTree(payload)
	if err != nil {
		return nil, fmt.Errorf("%s payload: %w", tag, err)
	}
	return Opaque{Tag: tag, Value: value}, nil
}

// plainTree walks an unknown tag's payload without interpreting nested
// tags, so an Opaque value re-encodes exactly as it arrived.
func plainTree(tree any) (any, error) {
	switch v := tree.(type) {
	case nil, bool, string:
		return v, nil
	case json.Number:
		return decodeNumber(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			value, err := plainTree(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = value
		}
		return items, nil
	case map[string]any:
		object := make(map[string]any, len(v))
		for key, value := range v {
			walked, err := plainTree(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			object[key] = walked
		}
		return object, nil
	}
	return nil, fmt.Errorf("unexpected JSON value of type %T", tree)
}

func decodeSequence(items []any, opts DecodeOptions) ([]any, error) {
	decoded := make([]any, len(items))
	for i, item := range items {
		value, err := decodeTree(item, opts)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		decoded[i] = value
	}
	return decoded, nil
}

func decodeDict(items []any, opts DecodeOptions) (map[any]any, error) {
	dict := make(map[any]any, len(items))
	for i, item := range items {
		entry, ok := item.([]any)
		if !ok || len(entry) != 2 {
			return nil, fmt.Errorf("dict entry %d is %T, want a two-element list", i, item)
		}
		key, err := decodeTree(entry[0], opts)
		if err != nil {
			return nil, fmt.Errorf("dict key %d: %w", i, err)
		}
		if key != nil && !reflect.TypeOf(key).Comparable() {
			return nil, fmt.Errorf("dict key %d of type %T cannot be a Go map key", i, key)
		}
		value, err := decodeTree(entry[1], opts)
		if err != nil {
			return nil, fmt.Errorf("dict value %d: %w", i, err)
		}
		dict[key] = value
	}
	return dict, nil
}

// decodeObject handles a plain JSON object with no tag. Conforming
// interpreters never send one inside a result, but handshake lines and
// transcripts pass through here.
func decodeObject(object map[string]any, opts DecodeOptions) (map[string]any, error) {
	decoded := make(map[string]any, len(object))
	for key, value := range object {
		v, err := decodeTree(value, opts)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		decoded[key] = v
	}
	return decoded, nil
}

func decodeBuffer(payload any) (Buffer, error) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return Buffer{}, fmt.Errorf("buffer payload is %T, want an object", payload)
	}
	format, ok := fields["format"].(string)
	if !ok {
		return Buffer{}, errors.New("buffer payload is missing a format string")
	}
	itemSize, ok := payloadInt(fields["itemsize"])
	if !ok {
		return Buffer{}, errors.New("buffer payload is missing an itemsize")
	}
	shape, ok := payloadShape(fields["shape"])
	if !ok {
		return Buffer{}, errors.New("buffer payload has a malformed shape")
	}
	data, err := payloadData(fields["data"])
	if err != nil {
		return Buffer{}, fmt.Errorf("buffer payload: %w", err)
	}
	buffer := Buffer{Format: format, ItemSize: itemSize, Shape: shape, Data: data}
	if err := buffer.Validate(); err != nil {
		return Buffer{}, err
	}
	return buffer, nil
}

func decodeArray(payload any) (NDArray, error) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return NDArray{}, fmt.Errorf("ndarray payload is %T, want an object", payload)
	}
	descriptor, ok := fields["dtype"].(string)
	if !ok {
		return NDArray{}, errors.New("ndarray payload is missing a dtype string")
	}
	shape, ok := payloadShape(fields["shape"])
	if !ok {
		return NDArray{}, errors.New("ndarray payload has a malformed shape")
	}
	data, err := payloadData(fields["data"])
	if err != nil {
		return NDArray{}, fmt.Errorf("ndarray payload: %w", err)
	}
	return NewNDArray(descriptor, shape, data)
}

func decodeMedia(payload any) (Media, error) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return Media{}, fmt.Errorf("media payload is %T, want an object", payload)
	}
	mime, ok := fields["mime"].(string)
	if !ok {
		return Media{}, errors.New("media payload is missing a mime string")
	}
	data, err := payloadData(fields["data"])
	if err != nil {
		return Media{}, fmt.Errorf("media payload: %w", err)
	}
	return Media{MIME: mime, Data: data}, nil
}

// decodeNumber handles an untagged JSON number. Conforming
// interpreters only emit these for integers below the tagging
// threshold, but oversized or fractional numbers still decode.
func decodeNumber(number json.Number) (any, error) {
	text := number.String()
	if strings.ContainsAny(text, ".eE") {
		f, err := number.Float64()
		if err != nil {
			return nil, fmt.Errorf("malformed number %q", text)
		}
		return f, nil
	}
	return parseIntText(text)
}

// parseIntText parses decimal integer text, preferring the machine int
// and falling back to a big integer when the value does not fit.
func parseIntText(text string) (any, error) {
	n, err := strconv.ParseInt(text, 10, 0)
	if err == nil {
		return int(n), nil
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
		value, ok := new(big.Int).SetString(text, 10)
		if ok {
			return value, nil
		}
	}
	return nil, fmt.Errorf("malformed integer %q", text)
}

func decodeRational(numerator, denominator any) (*big.Rat, error) {
	numText, ok := payloadText(numerator)
	if !ok {
		return nil, fmt.Errorf("rational numerator is %T, want string", numerator)
	}
	denText, ok := payloadText(denominator)
	if !ok {
		return nil, fmt.Errorf("rational denominator is %T, want string", denominator)
	}
	num, ok := new(big.Int).SetString(numText, 10)
	if !ok {
		return nil, fmt.Errorf("malformed rational numerator %q", numText)
	}
	den, ok := new(big.Int).SetString(denText, 10)
	if !ok || den.Sign() == 0 {
		return nil, fmt.Errorf("malformed rational denominator %q", denText)
	}
	return new(big.Rat).SetFrac(num, den), nil
}

// payloadText accepts a string or a bare number for numeric payload
// fields that are nominally text.
func payloadText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

func payloadInt(v any) (int, bool) {
	number, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(number.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

func payloadShape(v any) ([]int, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	shape := make([]int, len(items))
	for i, item := range items {
		dim, ok := payloadInt(item)
		if !ok {
			return nil, false
		}
		shape[i] = dim
	}
	return shape, true
}

func payloadData(v any) ([]byte, error) {
	text, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("data field is %T, want a base64 string", v)
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decode data field: %w", err)
	}
	return data, nil
}
