package scoring

import "sort"

// RankedResult is one entry of a single-modality ranking (dense-only or
// sparse-only), already sorted best-first by the caller.
type RankedResult struct {
	ID    string
	Score float32
}

// FusionMethod selects which hybrid combiner HybridFuse applies.
type FusionMethod int

const (
	// RRF is Reciprocal Rank Fusion: 1/(k+rank_dense) + 1/(k+rank_sparse).
	RRF FusionMethod = iota
	// WeightedLinear min-max normalizes each ranking then combines
	// alpha*dense + (1-alpha)*sparse.
	WeightedLinear
)

// rrfK is the RRF rank-damping constant fixed by spec.md §4.5.
const rrfK = 60

// FusedResult is one candidate's fused hybrid score, with the contributing
// per-modality scores broken out for callers that want to show their work.
type FusedResult struct {
	ID            string
	DenseScore    float32
	SparseScore   float32
	DenseRank     int // 1-indexed; 0 means absent from the dense ranking
	SparseRank    int // 1-indexed; 0 means absent from the sparse ranking
	FusedScore    float32
}

// HybridFuse combines a dense ranking and a sparse ranking for the same
// query into one fused, truncated ranking. Candidates present in only one
// ranking are not penalized beyond their missing-rank contribution (spec.md
// §4.5): RRF treats a missing side as rank infinity (contributing 0),
// weighted linear treats a missing side as normalized score 0.
func HybridFuse(dense, sparse []RankedResult, method FusionMethod, alpha float32, finalK int) []FusedResult {
	denseRank := make(map[string]int, len(dense))
	denseScore := make(map[string]float32, len(dense))
	for i, r := range dense {
		denseRank[r.ID] = i + 1
		denseScore[r.ID] = r.Score
	}

	sparseRank := make(map[string]int, len(sparse))
	sparseScore := make(map[string]float32, len(sparse))
	for i, r := range sparse {
		sparseRank[r.ID] = i + 1
		sparseScore[r.ID] = r.Score
	}

	seen := make(map[string]struct{}, len(dense)+len(sparse))
	ids := make([]string, 0, len(dense)+len(sparse))
	for _, r := range dense {
		if _, ok := seen[r.ID]; !ok {
			seen[r.ID] = struct{}{}
			ids = append(ids, r.ID)
		}
	}
	for _, r := range sparse {
		if _, ok := seen[r.ID]; !ok {
			seen[r.ID] = struct{}{}
			ids = append(ids, r.ID)
		}
	}

	var denseMin, denseMax, sparseMin, sparseMax float32
	if method == WeightedLinear {
		denseMin, denseMax = minMax(dense)
		sparseMin, sparseMax = minMax(sparse)
	}

	results := make([]FusedResult, 0, len(ids))
	for _, id := range ids {
		fr := FusedResult{
			ID:          id,
			DenseScore:  denseScore[id],
			SparseScore: sparseScore[id],
			DenseRank:   denseRank[id],
			SparseRank:  sparseRank[id],
		}

		switch method {
		case RRF:
			var score float32
			if fr.DenseRank > 0 {
				score += 1.0 / float32(rrfK+fr.DenseRank)
			}
			if fr.SparseRank > 0 {
				score += 1.0 / float32(rrfK+fr.SparseRank)
			}
			fr.FusedScore = score
		case WeightedLinear:
			d := normalize(denseScore[id], denseMin, denseMax, fr.DenseRank > 0)
			s := normalize(sparseScore[id], sparseMin, sparseMax, fr.SparseRank > 0)
			fr.FusedScore = alpha*d + (1-alpha)*s
		}

		results = append(results, fr)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FusedScore > results[j].FusedScore
	})

	if finalK > 0 && len(results) > finalK {
		results = results[:finalK]
	}
	return results
}

func minMax(results []RankedResult) (min, max float32) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max = results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

func normalize(score, min, max float32, present bool) float32 {
	if !present {
		return 0
	}
	if max-min < 1e-9 {
		return 1
	}
	return (score - min) / (max - min)
}
