// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
)

// Buffer is a raw binary exchange value: a byte payload plus the
// geometry needed to reinterpret it (struct-style element format,
// element size, and dimensions). The bytes are carried verbatim; the
// bridge validates the geometry but does not decode elements.
type Buffer struct {
	// Format is the element format string, e.g. "d" for a
	// double-precision float or "B" for an unsigned byte.
	Format string

	// ItemSize is the byte size of one element.
	ItemSize int

	// Shape holds the dimensions. A scalar buffer has an empty shape
	// and exactly one element.
	Shape []int

	// Data is the raw little-to-big unmodified payload.
	Data []byte
}

// ElementCount returns the number of elements the shape describes.
// An empty shape counts as one element.
func (b Buffer) ElementCount() int {
	return shapeProduct(b.Shape)
}

// Validate checks that the payload length matches the declared
// geometry exactly.
func (b Buffer) Validate() error {
	if b.ItemSize <= 0 {
		return fmt.Errorf("buffer itemsize %d is not positive", b.ItemSize)
	}
	for _, dim := range b.Shape {
		if dim < 0 {
			return fmt.Errorf("buffer shape %v has a negative dimension", b.Shape)
		}
	}
	want := b.ElementCount() * b.ItemSize
	if len(b.Data) != want {
		return fmt.Errorf("buffer data is %d bytes, shape %v with itemsize %d requires %d",
			len(b.Data), b.Shape, b.ItemSize, want)
	}
	return nil
}

// shapeProduct returns the element count for a dimension list. The
// empty shape describes a scalar, so the product starts at one.
func shapeProduct(shape []int) int {
	count := 1
	for _, dim := range shape {
		count *= dim
	}
	return count
}
