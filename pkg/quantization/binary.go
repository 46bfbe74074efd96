package quantization

import (
	"encoding/gob"
	"io"
	"math/bits"

	"github.com/liliang-cn/vectorcore/internal/encoding"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

// binaryState holds one threshold per dimension, trained as the
// per-dimension mean of the training sample.
type binaryState struct {
	Dim       int
	Threshold []float32
}

// BinaryQuantizer maps each dimension to a single bit: 1 if the value is
// at or above that dimension's trained threshold, 0 otherwise. Codes are
// packed 8 bits per byte and scored by Hamming distance.
type BinaryQuantizer struct {
	state   binaryState
	trained bool
}

// NewBinaryQuantizer returns an untrained binary codec.
func NewBinaryQuantizer() *BinaryQuantizer {
	return &BinaryQuantizer{}
}

func (q *BinaryQuantizer) Train(sample [][]float32) error {
	if len(sample) == 0 {
		return ErrNotTrained
	}
	dim := len(sample[0])
	sums := make([]float32, dim)
	for _, vec := range sample {
		for d := 0; d < dim && d < len(vec); d++ {
			sums[d] += vec[d]
		}
	}
	threshold := make([]float32, dim)
	for d := range threshold {
		threshold[d] = sums[d] / float32(len(sample))
	}

	q.state = binaryState{Dim: dim, Threshold: threshold}
	q.trained = true
	return nil
}

func (q *BinaryQuantizer) Trained() bool { return q.trained }

func (q *BinaryQuantizer) codeLen() int {
	return (q.state.Dim + 7) / 8
}

func (q *BinaryQuantizer) Encode(vec []float32) ([]byte, error) {
	if !q.trained {
		return nil, ErrNotTrained
	}
	if len(vec) != q.state.Dim {
		return nil, encoding.ErrInvalidVector
	}
	code := make([]byte, q.codeLen())
	for d, v := range vec {
		if v >= q.state.Threshold[d] {
			code[d/8] |= 1 << uint(d%8)
		}
	}
	return code, nil
}

// Decode reconstructs a vector of -1/+1 values (the standard bipolar
// recovery for a thresholded binary code), which is sufficient to compute
// Cosine/DotProduct similarity without storing the original magnitudes.
func (q *BinaryQuantizer) Decode(code []byte) ([]float32, error) {
	if !q.trained {
		return nil, ErrNotTrained
	}
	if len(code) != q.codeLen() {
		return nil, encoding.ErrInvalidVector
	}
	vec := make([]float32, q.state.Dim)
	for d := range vec {
		bit := code[d/8] & (1 << uint(d%8))
		if bit != 0 {
			vec[d] = 1
		} else {
			vec[d] = -1
		}
	}
	return vec, nil
}

// Score uses Hamming distance directly for Euclidean-family metrics
// (cheap, branch-free popcount) and falls back to the bipolar decode for
// Cosine/DotProduct, which need a real inner product.
func (q *BinaryQuantizer) Score(metric scoring.Metric, query []float32, code []byte) (float32, error) {
	if !q.trained {
		return 0, ErrNotTrained
	}
	if metric == scoring.Euclidean {
		queryCode, err := q.Encode(query)
		if err != nil {
			return 0, err
		}
		return float32(hammingDistance(queryCode, code)), nil
	}
	vec, err := q.Decode(code)
	if err != nil {
		return 0, err
	}
	return scoring.Distance(metric, query, vec), nil
}

func hammingDistance(a, b []byte) int {
	dist := 0
	for i := range a {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}

func (q *BinaryQuantizer) Tag() encoding.CodecTag { return encoding.CodecBinary }

func (q *BinaryQuantizer) Save(w io.Writer) error {
	if !q.trained {
		return ErrNotTrained
	}
	return gobSave(w, q.state)
}

func (q *BinaryQuantizer) Load(r io.Reader) error {
	var state binaryState
	if err := gobLoad(r, &state); err != nil {
		return err
	}
	q.state = state
	q.trained = true
	return nil
}

func init() {
	gob.Register(binaryState{})
}
