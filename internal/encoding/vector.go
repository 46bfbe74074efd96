// Package encoding provides the binary and JSON codecs shared by the
// store's snapshot format and its in-memory payload representation.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned when vector bytes are malformed or a vector
// value fails the core's numeric invariants (no NaN, no Inf).
var ErrInvalidVector = errors.New("invalid vector")

// EncodeVector serializes a dense vector as a length-prefixed, little-endian
// float32 array.
func EncodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}

	buf := new(bytes.Buffer)
	buf.Grow(4 + len(vector)*4)

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(vector))); err != nil {
		return nil, fmt.Errorf("encode vector length: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("encode vector values: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}

	length := binary.LittleEndian.Uint32(data[:4])
	rest := data[4:]
	if uint64(len(rest)) < uint64(length)*4 {
		return nil, ErrInvalidVector
	}

	vector := make([]float32, length)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(rest[i*4:])
		vector[i] = math.Float32frombits(bits)
	}

	return vector, nil
}

// EncodeSparseVector serializes parallel (index, value) arrays. Indices are
// assumed already validated as strictly increasing by the caller (see
// pkg/scoring.ValidateSparse).
func EncodeSparseVector(indices []uint32, values []float32) ([]byte, error) {
	if len(indices) != len(values) {
		return nil, fmt.Errorf("encoding: sparse indices/values length mismatch: %d vs %d", len(indices), len(values))
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(indices))); err != nil {
		return nil, fmt.Errorf("encode sparse length: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, indices); err != nil {
		return nil, fmt.Errorf("encode sparse indices: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, values); err != nil {
		return nil, fmt.Errorf("encode sparse values: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeSparseVector is the inverse of EncodeSparseVector.
func DecodeSparseVector(data []byte) (indices []uint32, values []float32, err error) {
	if len(data) < 4 {
		return nil, nil, ErrInvalidVector
	}

	length := binary.LittleEndian.Uint32(data[:4])
	rest := data[4:]
	if uint64(len(rest)) < uint64(length)*8 {
		return nil, nil, ErrInvalidVector
	}

	indices = make([]uint32, length)
	for i := range indices {
		indices[i] = binary.LittleEndian.Uint32(rest[i*4:])
	}
	rest = rest[length*4:]

	values = make([]float32, length)
	for i := range values {
		bits := binary.LittleEndian.Uint32(rest[i*4:])
		values[i] = math.Float32frombits(bits)
	}

	return indices, values, nil
}

// ValidateVector rejects NaN, Inf, and empty vectors. It does not check
// dimension against a collection — callers do that with the declared dim.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	for _, v := range vector {
		if v != v || math.IsInf(float64(v), 0) {
			return ErrInvalidVector
		}
	}
	return nil
}

// Normalize returns a new vector scaled to unit L2 norm. It reports whether
// the input had (effectively) zero norm, in which case the returned vector
// is a copy of the input, unmodified.
func Normalize(vector []float32) (out []float32, zeroNorm bool) {
	var sumSq float64
	for _, v := range vector {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	out = make([]float32, len(vector))
	if norm < 1e-12 {
		copy(out, vector)
		return out, true
	}
	invNorm := float32(1.0 / norm)
	for i, v := range vector {
		out[i] = v * invNorm
	}
	return out, false
}
