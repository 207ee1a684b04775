// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/tidwall/jsonc"
)

// loadLocals reads a JSONC manifest whose top-level keys become the
// locals visible to the submitted code. Comments and trailing commas
// are allowed; the file must hold one object.
func loadLocals(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading locals manifest: %w", err)
	}
	stripped := jsonc.ToJSON(data)

	decoder := json.NewDecoder(bytes.NewReader(stripped))
	decoder.UseNumber()
	var tree map[string]any
	if err := decoder.Decode(&tree); err != nil {
		return nil, fmt.Errorf("parsing locals manifest %s: %w", path, err)
	}
	for name, value := range tree {
		tree[name] = nativeNumbers(value)
	}
	return tree, nil
}

// nativeNumbers rewrites json.Number leaves so manifest integers cross
// the bridge as Python ints rather than floats.
func nativeNumbers(tree any) any {
	switch v := tree.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return n
		}
		f, err := v.Float64()
		if err != nil {
			return string(v)
		}
		return f
	case []any:
		for i, item := range v {
			v[i] = nativeNumbers(item)
		}
		return v
	case map[string]any:
		for key, item := range v {
			v[key] = nativeNumbers(item)
		}
		return v
	}
	return tree
}
