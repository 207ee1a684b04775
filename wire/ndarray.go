// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
)

// NDArray is a decoded n-dimensional array: a flat typed slice of
// elements in row-major order plus the shape. The element slice is one
// of []float32, []float64, []int8 … []uint64, []complex64,
// []complex128, or []bool, chosen by the dtype descriptor.
type NDArray struct {
	// DType is the validated element type the array was decoded with.
	DType DType

	// Shape holds the dimensions. An empty shape is a zero-dimensional
	// array with exactly one element.
	Shape []int

	// Elements is the flat row-major element slice.
	Elements any

	count int
}

// NewNDArray decodes a raw array payload against a dtype descriptor
// and shape. It fails when the descriptor is unsupported, the byte
// order does not match the host, or the payload length disagrees with
// the shape.
func NewNDArray(descriptor string, shape []int, data []byte) (NDArray, error) {
	dtype, err := ParseDType(descriptor)
	if err != nil {
		return NDArray{}, err
	}
	for _, dim := range shape {
		if dim < 0 {
			return NDArray{}, fmt.Errorf("array shape %v has a negative dimension", shape)
		}
	}
	count := shapeProduct(shape)
	if want := count * dtype.Size; len(data) != want {
		return NDArray{}, fmt.Errorf("array data is %d bytes, shape %v with dtype %s requires %d",
			len(data), shape, dtype, want)
	}
	elements, err := dtype.decodeElements(data)
	if err != nil {
		return NDArray{}, err
	}
	return NDArray{DType: dtype, Shape: shape, Elements: elements, count: count}, nil
}

// Len returns the total element count.
func (a NDArray) Len() int { return a.count }

// At returns the element at the given indices, one per dimension, in
// row-major order. It panics on rank mismatch or out-of-range indices,
// like slice indexing.
func (a NDArray) At(indices ...int) any {
	if len(indices) != len(a.Shape) {
		panic(fmt.Sprintf("wire: %d indices for array of rank %d", len(indices), len(a.Shape)))
	}
	flat := 0
	for dim, index := range indices {
		if index < 0 || index >= a.Shape[dim] {
			panic(fmt.Sprintf("wire: index %d out of range for dimension %d of shape %v",
				index, dim, a.Shape))
		}
		flat = flat*a.Shape[dim] + index
	}
	switch elems := a.Elements.(type) {
	case []float32:
		return elems[flat]
	case []float64:
		return elems[flat]
	case []int8:
		return elems[flat]
	case []int16:
		return elems[flat]
	case []int32:
		return elems[flat]
	case []int64:
		return elems[flat]
	case []uint8:
		return elems[flat]
	case []uint16:
		return elems[flat]
	case []uint32:
		return elems[flat]
	case []uint64:
		return elems[flat]
	case []complex64:
		return elems[flat]
	case []complex128:
		return elems[flat]
	case []bool:
		return elems[flat]
	}
	panic(fmt.Sprintf("wire: unexpected element slice %T", a.Elements))
}
