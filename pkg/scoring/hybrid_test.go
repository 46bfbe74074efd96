package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHybridFuseRRFMatchesFormula(t *testing.T) {
	dense := []RankedResult{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.7}}
	sparse := []RankedResult{{ID: "b", Score: 5}, {ID: "a", Score: 4}}

	fused := HybridFuse(dense, sparse, RRF, 0, 10)
	require.Len(t, fused, 3)

	byID := make(map[string]FusedResult, len(fused))
	for _, f := range fused {
		byID[f.ID] = f
	}

	// a: dense rank 1, sparse rank 2
	// (FusedScore is float32; its rounding error near 0.0325 exceeds 1e-9.)
	assert.InDelta(t, 1.0/61+1.0/62, byID["a"].FusedScore, 1e-7)
	// b: dense rank 2, sparse rank 1
	assert.InDelta(t, 1.0/62+1.0/61, byID["b"].FusedScore, 1e-7)
	// c: dense rank 3, absent from sparse
	assert.InDelta(t, 1.0/63, byID["c"].FusedScore, 1e-9)

	// a and b tie exactly, both beat c.
	assert.Greater(t, byID["a"].FusedScore, byID["c"].FusedScore)
}

func TestHybridFuseTruncatesToFinalK(t *testing.T) {
	dense := []RankedResult{{ID: "a", Score: 1}, {ID: "b", Score: 0.5}, {ID: "c", Score: 0.1}}
	fused := HybridFuse(dense, nil, RRF, 0, 2)
	assert.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
}

func TestHybridFuseWeightedLinearNormalizes(t *testing.T) {
	dense := []RankedResult{{ID: "a", Score: 1.0}, {ID: "b", Score: 0.0}}
	sparse := []RankedResult{{ID: "a", Score: 10}, {ID: "b", Score: 0}}

	fused := HybridFuse(dense, sparse, WeightedLinear, 0.5, 10)
	byID := make(map[string]FusedResult, len(fused))
	for _, f := range fused {
		byID[f.ID] = f
	}

	assert.InDelta(t, 1.0, byID["a"].FusedScore, 1e-6)
	assert.InDelta(t, 0.0, byID["b"].FusedScore, 1e-6)
}

func TestHybridFuseMissingSideContributesZero(t *testing.T) {
	dense := []RankedResult{{ID: "a", Score: 1}}
	fused := HybridFuse(dense, nil, WeightedLinear, 0.5, 10)
	require.Len(t, fused, 1)
	// alpha*1 + (1-alpha)*0, with alpha=0.5 -> 0.5
	assert.InDelta(t, 0.5, fused[0].FusedScore, 1e-6)
}
