package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSparseRejectsNonIncreasing(t *testing.T) {
	v := SparseVector{Indices: []uint32{1, 1}, Values: []float32{1, 1}}
	require.Error(t, ValidateSparse(v))

	v2 := SparseVector{Indices: []uint32{2, 1}, Values: []float32{1, 1}}
	require.Error(t, ValidateSparse(v2))
}

func TestValidateSparseAcceptsStrictlyIncreasing(t *testing.T) {
	v := SparseVector{Indices: []uint32{1, 3, 7}, Values: []float32{1, 1, 1}}
	require.NoError(t, ValidateSparse(v))
}

func TestSparseDotOverlap(t *testing.T) {
	a := SparseVector{Indices: []uint32{1, 3, 5}, Values: []float32{1, 2, 3}}
	b := SparseVector{Indices: []uint32{3, 5, 9}, Values: []float32{4, 5, 6}}
	// overlap at 3 (2*4=8) and 5 (3*5=15) = 23
	assert.InDelta(t, 23, SparseDot(a, b), 1e-6)
}

func TestSparseDotNoOverlap(t *testing.T) {
	a := SparseVector{Indices: []uint32{1}, Values: []float32{1}}
	b := SparseVector{Indices: []uint32{2}, Values: []float32{1}}
	assert.Equal(t, float32(0), SparseDot(a, b))
}
