package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

func alwaysLive(uint32) bool { return true }

func randVecs(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func TestGraphInsertAndSearchFindsExactMatch(t *testing.T) {
	g := New(DefaultConfig(), scoring.Euclidean, alwaysLive)
	vecs := randVecs(50, 8, 1)
	for i, v := range vecs {
		g.Insert(uint32(i), v)
	}

	results := g.Search(vecs[10], 1, 50)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(10), results[0].Internal)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestGraphSearchReturnsKNearest(t *testing.T) {
	g := New(DefaultConfig(), scoring.Euclidean, alwaysLive)
	vecs := randVecs(200, 4, 2)
	for i, v := range vecs {
		g.Insert(uint32(i), v)
	}

	results := g.Search(vecs[0], 5, 100)
	assert.Len(t, results, 5)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestGraphDeleteRemovesFromResults(t *testing.T) {
	g := New(DefaultConfig(), scoring.Euclidean, alwaysLive)
	vecs := randVecs(30, 4, 3)
	for i, v := range vecs {
		g.Insert(uint32(i), v)
	}

	require.NoError(t, g.Delete(5))
	assert.Equal(t, 29, g.Size())

	results := g.Search(vecs[5], 30, 100)
	for _, r := range results {
		assert.NotEqual(t, uint32(5), r.Internal)
	}
}

func TestGraphDeleteUnknownNode(t *testing.T) {
	g := New(DefaultConfig(), scoring.Euclidean, alwaysLive)
	g.Insert(0, []float32{1, 2, 3})
	assert.ErrorIs(t, g.Delete(99), ErrNodeNotFound)
}

func TestGraphEntryPointReassignedAfterDeletingIt(t *testing.T) {
	g := New(Config{M: 4, EfConstruction: 50, Seed: 7}, scoring.Euclidean, alwaysLive)
	vecs := randVecs(10, 4, 4)
	for i, v := range vecs {
		g.Insert(uint32(i), v)
	}
	initialEntry := g.entryPoint
	require.NoError(t, g.Delete(initialEntry))
	assert.NotEqual(t, initialEntry, g.entryPoint)
	assert.True(t, g.hasEntry)
}

func TestGraphSymmetricEdgesAfterChurn(t *testing.T) {
	g := New(Config{M: 4, EfConstruction: 50, Seed: 9}, scoring.Euclidean, alwaysLive)
	vecs := randVecs(40, 4, 5)
	for i, v := range vecs {
		g.Insert(uint32(i), v)
	}
	for i := uint32(0); i < 10; i++ {
		_ = g.Delete(i)
	}

	for id, n := range g.nodes {
		for layer, neighbors := range n.neighbors {
			for _, neighborID := range neighbors {
				neighborNode, ok := g.nodes[neighborID]
				require.True(t, ok, "neighbor %d of %d must still exist", neighborID, id)
				require.Less(t, layer, len(neighborNode.neighbors))
				found := false
				for _, back := range neighborNode.neighbors[layer] {
					if back == id {
						found = true
						break
					}
				}
				assert.True(t, found, "edge %d->%d at layer %d is not symmetric", id, neighborID, layer)
			}
		}
	}
}

func TestGraphExportRebuildRoundTrip(t *testing.T) {
	g := New(DefaultConfig(), scoring.Cosine, alwaysLive)
	vecs := randVecs(20, 4, 6)
	for i, v := range vecs {
		g.Insert(uint32(i), v)
	}

	entryPoint, hasEntry, nodes := g.Export()

	loaded := New(DefaultConfig(), scoring.Cosine, nil)
	loaded.Rebuild(DefaultConfig(), scoring.Cosine, entryPoint, hasEntry, nodes, alwaysLive)

	assert.Equal(t, g.Size(), loaded.Size())
	before := g.Search(vecs[0], 3, 50)
	after := loaded.Search(vecs[0], 3, 50)
	assert.Equal(t, before, after)
}

func TestGraphRangeSearch(t *testing.T) {
	g := New(DefaultConfig(), scoring.Euclidean, alwaysLive)
	vecs := randVecs(60, 4, 8)
	for i, v := range vecs {
		g.Insert(uint32(i), v)
	}
	results := g.RangeSearch(vecs[0], 0.01, 100)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.LessOrEqual(t, r.Distance, float32(0.01))
	}
}
