package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/vectorcore/internal/encoding"
	"github.com/liliang-cn/vectorcore/pkg/payload"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

func newTestCollection(t *testing.T, cfg CollectionConfig) *Collection {
	t.Helper()
	return newCollection("test", cfg, NopLogger())
}

// S1 — basic round-trip.
func TestScenarioBasicRoundTrip(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)

	result, err := c.Insert([]VectorInput{{ID: "a", Vector: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	results, err := c.Search([]float32{1, 0, 0, 0}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	deleted := c.Delete([]string{"a"})
	assert.Equal(t, 1, deleted)

	n, err := c.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// S2 — nearest neighbor ordering.
func TestScenarioNearestNeighborOrdering(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	cfg.Metric = scoring.Euclidean
	c := newTestCollection(t, cfg)

	_, err := c.Insert([]VectorInput{
		{ID: "a", Vector: []float32{0, 0, 0, 0}},
		{ID: "b", Vector: []float32{1, 0, 0, 0}},
		{ID: "c", Vector: []float32{0, 1, 0, 0}},
	})
	require.NoError(t, err)

	results, err := c.Search([]float32{0.9, 0.1, 0, 0}, 3, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	ids := []string{results[0].ID, results[1].ID, results[2].ID}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

// S3 — deletion hides but reinsert resolves to the new vector.
func TestScenarioDeletionHidesThenReinsert(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	cfg.Metric = scoring.Euclidean
	c := newTestCollection(t, cfg)

	_, err := c.Insert([]VectorInput{
		{ID: "a", Vector: []float32{0, 0, 0, 0}},
		{ID: "b", Vector: []float32{1, 0, 0, 0}},
		{ID: "c", Vector: []float32{0, 1, 0, 0}},
	})
	require.NoError(t, err)

	c.Delete([]string{"b"})

	results, err := c.Search([]float32{1, 0, 0, 0}, 3, 0, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "b", r.ID)
	}
	n, _ := c.Count(nil)
	assert.Equal(t, 2, n)

	_, err = c.Insert([]VectorInput{{ID: "b", Vector: []float32{5, 5, 5, 5}}})
	require.NoError(t, err)

	results, err = c.Search([]float32{5, 5, 5, 5}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

// S4 — dimension validation.
func TestScenarioDimensionValidation(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)

	result, err := c.Insert([]VectorInput{{ID: "x", Vector: []float32{1, 0, 0}}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "x", result.Failed[0].ID)
	assert.ErrorIs(t, result.Failed[0].Reason, ErrInvalidDimension)
}

func TestInsertZeroNormVectorRejectedForCosine(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)

	result, err := c.Insert([]VectorInput{{ID: "z", Vector: []float32{0, 0, 0, 0}}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	require.Len(t, result.Failed, 1)
}

func TestInsertEmptyVectorRejected(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)

	result, err := c.Insert([]VectorInput{{ID: "e", Vector: nil}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	require.Len(t, result.Failed, 1)
}

func TestPartialBatchCommitsValidEntries(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)

	result, err := c.Insert([]VectorInput{
		{ID: "good", Vector: []float32{1, 0, 0, 0}},
		{ID: "bad", Vector: []float32{1, 0, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bad", result.Failed[0].ID)

	_, _, err = c.Get("good")
	require.NoError(t, err)
}

func TestSearchKGreaterThanCountReturnsCountResults(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	cfg.Metric = scoring.Euclidean
	c := newTestCollection(t, cfg)
	_, err := c.Insert([]VectorInput{{ID: "a", Vector: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)

	results, err := c.Search([]float32{1, 0, 0, 0}, 10, 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchWithFilterReturnsFewerThanK(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	cfg.Metric = scoring.Euclidean
	c := newTestCollection(t, cfg)
	_, err := c.Insert([]VectorInput{
		{ID: "a", Vector: []float32{1, 0, 0, 0}, Payload: encoding.Payload{"category": "news"}},
		{ID: "b", Vector: []float32{1, 1, 0, 0}, Payload: encoding.Payload{"category": "sports"}},
	})
	require.NoError(t, err)

	filter := payload.EqExpr("category", "news")
	results, err := c.Search([]float32{1, 0, 0, 0}, 5, 0, filter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestUpdateReplacesVector(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	cfg.Metric = scoring.Euclidean
	c := newTestCollection(t, cfg)
	_, err := c.Insert([]VectorInput{{ID: "a", Vector: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)

	require.NoError(t, c.Update("a", []float32{0, 0, 0, 1}, nil))

	vec, _, err := c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 1}, vec)
}

func TestUpdateUnknownIDFails(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)
	err := c.Update("missing", []float32{1, 0, 0, 0}, nil)
	assert.ErrorIs(t, err, ErrPointNotFound)
}

func TestGetAfterDeleteReturnsNotFound(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)
	_, err := c.Insert([]VectorInput{{ID: "a", Vector: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)
	c.Delete([]string{"a"})

	_, _, err = c.Get("a")
	assert.ErrorIs(t, err, ErrPointNotFound)
}

func TestGetReportsInternalErrorOnCacheDesync(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)
	_, err := c.Insert([]VectorInput{{ID: "a", Vector: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)

	internal, _, ok := c.payloads.GetByExternalID("a")
	require.True(t, ok)
	c.mu.Lock()
	delete(c.points, internal)
	c.mu.Unlock()

	_, _, err = c.Get("a")
	assert.ErrorIs(t, err, ErrInternal)
}

func TestSingleVectorCollectionSearchScore(t *testing.T) {
	cosine := DefaultCollectionConfig(4)
	c := newTestCollection(t, cosine)
	_, err := c.Insert([]VectorInput{{ID: "a", Vector: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)
	results, err := c.Search([]float32{1, 0, 0, 0}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	euclid := DefaultCollectionConfig(4)
	euclid.Metric = scoring.Euclidean
	c2 := newTestCollection(t, euclid)
	_, err = c2.Insert([]VectorInput{{ID: "a", Vector: []float32{1, 2, 3, 4}}})
	require.NoError(t, err)
	results, err = c2.Search([]float32{1, 2, 3, 4}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.0, results[0].Score, 1e-5)
}

// S6 — hybrid RRF.
func TestScenarioHybridRRF(t *testing.T) {
	cfg := DefaultCollectionConfig(16)
	cfg.Metric = scoring.DotProduct
	c := newTestCollection(t, cfg)

	inputs := make([]VectorInput, 0, 100)
	for i := 0; i < 100; i++ {
		vec := make([]float32, 16)
		vec[i%16] = float32(i%5) + 1
		sparse := &scoring.SparseVector{Indices: []uint32{uint32(i % 10)}, Values: []float32{float32(i%7) + 1}}
		inputs = append(inputs, VectorInput{ID: idFor(i), Vector: vec, Sparse: sparse})
	}
	_, err := c.Insert(inputs)
	require.NoError(t, err)

	query := make([]float32, 16)
	query[3] = 1
	sparseQuery := scoring.SparseVector{Indices: []uint32{3}, Values: []float32{1}}

	fused, err := c.HybridSearch(query, sparseQuery, 50, 50, 10, scoring.RRF, 0.5)
	require.NoError(t, err)
	require.LessOrEqual(t, len(fused), 10)

	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1].FusedScore, fused[i].FusedScore)
	}
	for _, f := range fused {
		var want float32
		if f.DenseRank > 0 {
			want += 1.0 / float32(60+f.DenseRank)
		}
		if f.SparseRank > 0 {
			want += 1.0 / float32(60+f.SparseRank)
		}
		assert.InDelta(t, want, f.FusedScore, 1e-6)
	}
}

func idFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%26]) + string(rune('0'+i/26))
}

func TestRangeSearchReturnsOnlyWithinRadius(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	cfg.Metric = scoring.Euclidean
	c := newTestCollection(t, cfg)
	_, err := c.Insert([]VectorInput{
		{ID: "near", Vector: []float32{1, 0, 0, 0}},
		{ID: "far", Vector: []float32{10, 10, 10, 10}},
	})
	require.NoError(t, err)

	results, err := c.RangeSearch([]float32{1, 0, 0, 0}, 1.0, 50)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "far", r.ID)
	}
}

func TestOptimizeCompactsTombstones(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)
	_, err := c.Insert([]VectorInput{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0, 0}},
	})
	require.NoError(t, err)
	c.Delete([]string{"a"})

	require.NoError(t, c.Optimize())

	stats := c.Stats()
	assert.Equal(t, 1, stats.VectorCount)
	assert.Equal(t, 0, stats.TombstoneCount)

	_, _, err = c.Get("b")
	require.NoError(t, err)
}

func TestScrollIteratesDeterministically(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)
	for i := 0; i < 5; i++ {
		_, err := c.Insert([]VectorInput{{ID: idFor(i), Vector: []float32{float32(i), 0, 0, 1}}})
		require.NoError(t, err)
	}

	var allIDs []string
	cursor := Cursor{}
	for {
		items, next, err := c.Scroll(cursor, 2, nil)
		require.NoError(t, err)
		for _, it := range items {
			allIDs = append(allIDs, it.ID)
		}
		if next.Done() {
			break
		}
		cursor = next
	}
	assert.Len(t, allIDs, 5)
}

func TestInsertParallelCommitsAllValidEntries(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	cfg.Metric = scoring.Euclidean
	c := newTestCollection(t, cfg)

	inputs := make([]VectorInput, 0, 64)
	for i := 0; i < 64; i++ {
		inputs = append(inputs, VectorInput{ID: idFor(i), Vector: []float32{float32(i), 0, 0, 1}})
	}
	result, err := c.InsertParallel(inputs)
	require.NoError(t, err)
	assert.Equal(t, 64, result.Inserted)
	assert.Empty(t, result.Failed)

	n, err := c.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
}

func TestInsertDuplicateIDFails(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	c := newTestCollection(t, cfg)
	_, err := c.Insert([]VectorInput{{ID: "a", Vector: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)

	result, err := c.Insert([]VectorInput{{ID: "a", Vector: []float32{0, 1, 0, 0}}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	require.Len(t, result.Failed, 1)
	assert.ErrorIs(t, result.Failed[0].Reason, ErrPointExists)
}

func TestInsertRejectsAtCapacity(t *testing.T) {
	cfg := DefaultCollectionConfig(4)
	cfg.MaxVectors = 2
	c := newTestCollection(t, cfg)

	result, err := c.Insert([]VectorInput{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0, 0}},
		{ID: "c", Vector: []float32{0, 0, 1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "c", result.Failed[0].ID)
	assert.ErrorIs(t, result.Failed[0].Reason, ErrCapacity)

	n, err := c.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
