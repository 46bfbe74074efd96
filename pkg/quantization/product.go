package quantization

import (
	"encoding/gob"
	"io"
	"math"
	"math/rand"

	"github.com/liliang-cn/vectorcore/internal/encoding"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

const (
	// pqCentroids is K, the number of centroids trained per subspace. One
	// code byte per subspace caps this at 256.
	pqCentroids = 256
	// pqKMeansIters bounds Lloyd's algorithm; the teacher's
	// product_quantization.go uses the same fixed-iteration stopping rule
	// rather than a convergence threshold, to keep Train's cost bounded.
	pqKMeansIters = 25
	// pqSeed fixes the centroid-initialization RNG so Train is
	// reproducible given the same sample.
	pqSeed = 42
)

// productState is the trained, gob-serializable state of a
// ProductQuantizer: M subspace codebooks, each pqCentroids x subDim, or
// fewer centroids when the training sample has fewer than pqCentroids
// vectors.
type productState struct {
	Dim       int
	Subspaces int
	SubDim    int
	Codebooks [][][]float32 // [subspace][centroid][subDim]
}

// ProductQuantizer implements PQ: the vector is split into M contiguous
// subspaces, each independently vector-quantized against a trained
// codebook of up to pqCentroids centroids, and the code is one byte per
// subspace.
type ProductQuantizer struct {
	state   productState
	trained bool
}

// NewProductQuantizer returns an untrained PQ codec with the given number
// of subspaces. If the trained dim is not divisible by subspaces, Train
// lowers the subspace count to the largest smaller value that divides dim.
func NewProductQuantizer(subspaces int) *ProductQuantizer {
	return &ProductQuantizer{state: productState{Subspaces: subspaces}}
}

func (q *ProductQuantizer) Train(sample [][]float32) error {
	if len(sample) == 0 {
		return ErrNotTrained
	}
	dim := len(sample[0])
	m := q.state.Subspaces
	if m <= 0 {
		m = 1
	}
	if dim%m != 0 {
		// Fall back to a subspace count that divides dim evenly, favoring
		// fewer, larger subspaces over dropping dimensions.
		for m > 1 && dim%m != 0 {
			m--
		}
	}
	subDim := dim / m

	codebooks := make([][][]float32, m)
	rng := rand.New(rand.NewSource(pqSeed))
	for s := 0; s < m; s++ {
		subvectors := make([][]float32, len(sample))
		for i, vec := range sample {
			subvectors[i] = vec[s*subDim : (s+1)*subDim]
		}
		codebooks[s] = trainSubspace(subvectors, subDim, rng)
	}

	q.state = productState{Dim: dim, Subspaces: m, SubDim: subDim, Codebooks: codebooks}
	q.trained = true
	return nil
}

// trainSubspace runs Lloyd's algorithm with random initial centroids
// drawn from the sample itself, avoiding the empty-cluster-collapse
// failure mode of purely random centroid vectors.
func trainSubspace(subvectors [][]float32, subDim int, rng *rand.Rand) [][]float32 {
	k := pqCentroids
	if k > len(subvectors) {
		k = len(subvectors)
	}
	if k == 0 {
		k = 1
	}

	centroids := make([][]float32, k)
	perm := rng.Perm(len(subvectors))
	for i := 0; i < k; i++ {
		src := subvectors[perm[i%len(perm)]]
		centroids[i] = append([]float32(nil), src...)
	}

	assign := make([]int, len(subvectors))
	for iter := 0; iter < pqKMeansIters; iter++ {
		changed := false
		for i, vec := range subvectors {
			best, bestDist := 0, float32(math.MaxFloat32)
			for c, centroid := range centroids {
				d := squaredDistance(vec, centroid)
				if d < bestDist {
					bestDist, best = d, c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float32, subDim)
		}
		for i, vec := range subvectors {
			c := assign[i]
			counts[c]++
			for d := 0; d < subDim; d++ {
				sums[c][d] += vec[d]
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < subDim; d++ {
				centroids[c][d] = sums[c][d] / float32(counts[c])
			}
		}

		if !changed && iter > 0 {
			break
		}
	}
	return centroids
}

func squaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

func (q *ProductQuantizer) Trained() bool { return q.trained }

func (q *ProductQuantizer) Encode(vec []float32) ([]byte, error) {
	if !q.trained {
		return nil, ErrNotTrained
	}
	if len(vec) != q.state.Dim {
		return nil, encoding.ErrInvalidVector
	}
	code := make([]byte, q.state.Subspaces)
	for s := 0; s < q.state.Subspaces; s++ {
		sub := vec[s*q.state.SubDim : (s+1)*q.state.SubDim]
		best, bestDist := 0, float32(math.MaxFloat32)
		for c, centroid := range q.state.Codebooks[s] {
			d := squaredDistance(sub, centroid)
			if d < bestDist {
				bestDist, best = d, c
			}
		}
		code[s] = byte(best)
	}
	return code, nil
}

func (q *ProductQuantizer) Decode(code []byte) ([]float32, error) {
	if !q.trained {
		return nil, ErrNotTrained
	}
	if len(code) != q.state.Subspaces {
		return nil, encoding.ErrInvalidVector
	}
	vec := make([]float32, q.state.Dim)
	for s, b := range code {
		centroid := q.state.Codebooks[s][int(b)]
		copy(vec[s*q.state.SubDim:(s+1)*q.state.SubDim], centroid)
	}
	return vec, nil
}

// Score uses an asymmetric distance table: the full-precision query is
// compared directly against every centroid in each subspace once, then
// the stored code's centroid distances are summed. This is the PQ-ADC
// scoring convention and avoids ever reconstructing the stored vector.
func (q *ProductQuantizer) Score(metric scoring.Metric, query []float32, code []byte) (float32, error) {
	if !q.trained {
		return 0, ErrNotTrained
	}
	if len(query) != q.state.Dim || len(code) != q.state.Subspaces {
		return 0, encoding.ErrInvalidVector
	}

	switch metric {
	case scoring.Euclidean:
		var total float32
		for s, b := range code {
			sub := query[s*q.state.SubDim : (s+1)*q.state.SubDim]
			total += squaredDistance(sub, q.state.Codebooks[s][int(b)])
		}
		return total, nil
	default:
		// Cosine and DotProduct both reduce to a dot-product accumulation
		// across subspaces, differing only in how the caller normalizes
		// inputs before calling Score.
		var dot float32
		for s, b := range code {
			sub := query[s*q.state.SubDim : (s+1)*q.state.SubDim]
			centroid := q.state.Codebooks[s][int(b)]
			for d := range sub {
				dot += sub[d] * centroid[d]
			}
		}
		if metric == scoring.Cosine {
			return 1 - dot, nil
		}
		return -dot, nil
	}
}

func (q *ProductQuantizer) Tag() encoding.CodecTag { return encoding.CodecProduct }

func (q *ProductQuantizer) Save(w io.Writer) error {
	if !q.trained {
		return ErrNotTrained
	}
	return gobSave(w, q.state)
}

func (q *ProductQuantizer) Load(r io.Reader) error {
	var state productState
	if err := gobLoad(r, &state); err != nil {
		return err
	}
	q.state = state
	q.trained = true
	return nil
}

func init() {
	gob.Register(productState{})
}
