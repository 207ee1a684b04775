// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrUnsupportedDType reports a dtype descriptor whose order character,
// type code, or size this package cannot represent.
var ErrUnsupportedDType = errors.New("unsupported dtype")

// ErrByteOrderMismatch reports a dtype descriptor whose explicit byte
// order differs from the host's. The bridge never byte-swaps array
// payloads; a mismatched descriptor is a hard decode error.
var ErrByteOrderMismatch = errors.New("dtype byte order does not match host")

// hostOrderChar is '<' on little-endian hosts and '>' on big-endian
// hosts, matching the descriptor convention.
var hostOrderChar = func() byte {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 0x0102)
	if probe[0] == 0x02 {
		return '<'
	}
	return '>'
}()

// DType is a parsed array element type descriptor of the form
// <byteorder><typecode><size>: for example "<f8" is a little-endian
// 64-bit float and "|u1" an order-independent unsigned byte.
type DType struct {
	descriptor string

	// Code is the element kind: 'f' float, 'i' signed integer,
	// 'u' unsigned integer, 'c' complex, 'b' boolean.
	Code byte

	// Size is the total byte size of one element. For complex types
	// this covers both components.
	Size int
}

// String returns the original descriptor.
func (d DType) String() string { return d.descriptor }

// validSizes lists the accepted element sizes per type code.
var validSizes = map[byte][]int{
	'f': {2, 4, 8},
	'i': {1, 2, 4, 8},
	'u': {1, 2, 4, 8},
	'c': {4, 8, 16},
	'b': {1},
}

// ParseDType parses and validates a dtype descriptor. Descriptors with
// an explicit byte order ('<' or '>') must match the host's native
// order exactly; '|' marks order-independent types and is only valid
// for single-byte elements.
func ParseDType(descriptor string) (DType, error) {
	if len(descriptor) < 3 {
		return DType{}, fmt.Errorf("%w: %q is too short", ErrUnsupportedDType, descriptor)
	}

	order := descriptor[0]
	code := descriptor[1]
	size, err := strconv.Atoi(descriptor[2:])
	if err != nil {
		return DType{}, fmt.Errorf("%w: %q has a malformed size", ErrUnsupportedDType, descriptor)
	}

	sizes, ok := validSizes[code]
	if !ok {
		return DType{}, fmt.Errorf("%w: %q has unknown type code %q", ErrUnsupportedDType, descriptor, string(code))
	}
	if !containsInt(sizes, size) {
		return DType{}, fmt.Errorf("%w: %q has unsupported size %d for code %q",
			ErrUnsupportedDType, descriptor, size, string(code))
	}

	switch order {
	case '|':
		if size != 1 {
			return DType{}, fmt.Errorf("%w: %q uses '|' with a multi-byte element", ErrUnsupportedDType, descriptor)
		}
	case '<', '>':
		if order != hostOrderChar {
			return DType{}, fmt.Errorf("%w: %q on a %q host", ErrByteOrderMismatch, descriptor, string(hostOrderChar))
		}
	default:
		return DType{}, fmt.Errorf("%w: %q has unknown byte order %q", ErrUnsupportedDType, descriptor, string(order))
	}

	return DType{descriptor: descriptor, Code: code, Size: size}, nil
}

func containsInt(values []int, want int) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// decodeElements reinterprets data as a flat sequence of the dtype's
// elements, in host byte order, and returns the corresponding typed
// slice: []float32, []float64, []int8 … []uint64, []complex64,
// []complex128, or []bool. Half-precision floats (f2, and the halves
// of c4) widen losslessly to float32. The data length must be an exact
// multiple of the element size.
func (d DType) decodeElements(data []byte) (any, error) {
	if len(data)%d.Size != 0 {
		return nil, fmt.Errorf("array payload of %d bytes is not a multiple of element size %d (%s)",
			len(data), d.Size, d.descriptor)
	}
	count := len(data) / d.Size

	switch {
	case d.Code == 'f' && d.Size == 2:
		out := make([]float32, count)
		for i := range out {
			out[i] = halfToFloat32(binary.NativeEndian.Uint16(data[i*2:]))
		}
		return out, nil
	case d.Code == 'f' && d.Size == 4:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(binary.NativeEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case d.Code == 'f' && d.Size == 8:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(binary.NativeEndian.Uint64(data[i*8:]))
		}
		return out, nil

	case d.Code == 'i' && d.Size == 1:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(data[i])
		}
		return out, nil
	case d.Code == 'i' && d.Size == 2:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(binary.NativeEndian.Uint16(data[i*2:]))
		}
		return out, nil
	case d.Code == 'i' && d.Size == 4:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(binary.NativeEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case d.Code == 'i' && d.Size == 8:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(binary.NativeEndian.Uint64(data[i*8:]))
		}
		return out, nil

	case d.Code == 'u' && d.Size == 1:
		out := make([]uint8, count)
		copy(out, data)
		return out, nil
	case d.Code == 'u' && d.Size == 2:
		out := make([]uint16, count)
		for i := range out {
			out[i] = binary.NativeEndian.Uint16(data[i*2:])
		}
		return out, nil
	case d.Code == 'u' && d.Size == 4:
		out := make([]uint32, count)
		for i := range out {
			out[i] = binary.NativeEndian.Uint32(data[i*4:])
		}
		return out, nil
	case d.Code == 'u' && d.Size == 8:
		out := make([]uint64, count)
		for i := range out {
			out[i] = binary.NativeEndian.Uint64(data[i*8:])
		}
		return out, nil

	case d.Code == 'c' && d.Size == 4:
		out := make([]complex64, count)
		for i := range out {
			re := halfToFloat32(binary.NativeEndian.Uint16(data[i*4:]))
			im := halfToFloat32(binary.NativeEndian.Uint16(data[i*4+2:]))
			out[i] = complex(re, im)
		}
		return out, nil
	case d.Code == 'c' && d.Size == 8:
		out := make([]complex64, count)
		for i := range out {
			re := math.Float32frombits(binary.NativeEndian.Uint32(data[i*8:]))
			im := math.Float32frombits(binary.NativeEndian.Uint32(data[i*8+4:]))
			out[i] = complex(re, im)
		}
		return out, nil
	case d.Code == 'c' && d.Size == 16:
		out := make([]complex128, count)
		for i := range out {
			re := math.Float64frombits(binary.NativeEndian.Uint64(data[i*16:]))
			im := math.Float64frombits(binary.NativeEndian.Uint64(data[i*16+8:]))
			out[i] = complex(re, im)
		}
		return out, nil

	case d.Code == 'b':
		out := make([]bool, count)
		for i := range out {
			out[i] = data[i] != 0
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDType, d.descriptor)
}

// halfToFloat32 widens an IEEE 754 half-precision value to float32.
// The conversion is exact: every half value, including subnormals,
// infinities, and NaN payloads, is representable in float32.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exponent := uint32(h>>10) & 0x1f
	fraction := uint32(h & 0x3ff)

	switch exponent {
	case 0:
		if fraction == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: value is fraction × 2⁻²⁴.
		value := float32(fraction) * float32(1.0/(1<<24))
		if sign != 0 {
			value = -value
		}
		return value
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | fraction<<13)
	default:
		return math.Float32frombits(sign | (exponent+127-15)<<23 | fraction<<13)
	}
}
