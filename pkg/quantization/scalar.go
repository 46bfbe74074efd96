package quantization

import (
	"encoding/gob"
	"io"
	"math"

	"github.com/liliang-cn/vectorcore/internal/encoding"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

// scalarState is the trained, gob-serializable state of a ScalarQuantizer:
// one (min, max) pair per dimension, mirroring the teacher's
// scalar_quantization.go layout.
type scalarState struct {
	Dim  int
	Min  []float32
	Max  []float32
}

// ScalarQuantizer implements SQ8: each dimension is linearly mapped to a
// single byte using that dimension's training-sample min/max.
type ScalarQuantizer struct {
	state   scalarState
	trained bool
}

// NewScalarQuantizer returns an untrained SQ8 codec.
func NewScalarQuantizer() *ScalarQuantizer {
	return &ScalarQuantizer{}
}

func (q *ScalarQuantizer) Train(sample [][]float32) error {
	if len(sample) == 0 {
		return ErrNotTrained
	}
	dim := len(sample[0])
	min := make([]float32, dim)
	max := make([]float32, dim)
	copy(min, sample[0])
	copy(max, sample[0])

	for _, vec := range sample[1:] {
		for d := 0; d < dim && d < len(vec); d++ {
			if vec[d] < min[d] {
				min[d] = vec[d]
			}
			if vec[d] > max[d] {
				max[d] = vec[d]
			}
		}
	}
	// Guard against a degenerate dimension where every sample shares the
	// same value — encode would otherwise divide by zero.
	for d := 0; d < dim; d++ {
		if max[d]-min[d] < 1e-6 {
			max[d] = min[d] + 1e-6
		}
	}

	q.state = scalarState{Dim: dim, Min: min, Max: max}
	q.trained = true
	return nil
}

func (q *ScalarQuantizer) Trained() bool { return q.trained }

func (q *ScalarQuantizer) Encode(vec []float32) ([]byte, error) {
	if !q.trained {
		return nil, ErrNotTrained
	}
	if len(vec) != q.state.Dim {
		return nil, encoding.ErrInvalidVector
	}
	code := make([]byte, q.state.Dim)
	for d, v := range vec {
		span := q.state.Max[d] - q.state.Min[d]
		normalized := (v - q.state.Min[d]) / span
		if normalized < 0 {
			normalized = 0
		} else if normalized > 1 {
			normalized = 1
		}
		code[d] = byte(math.Round(float64(normalized) * 255))
	}
	return code, nil
}

func (q *ScalarQuantizer) Decode(code []byte) ([]float32, error) {
	if !q.trained {
		return nil, ErrNotTrained
	}
	if len(code) != q.state.Dim {
		return nil, encoding.ErrInvalidVector
	}
	vec := make([]float32, q.state.Dim)
	for d, b := range code {
		span := q.state.Max[d] - q.state.Min[d]
		vec[d] = q.state.Min[d] + (float32(b)/255.0)*span
	}
	return vec, nil
}

func (q *ScalarQuantizer) Score(metric scoring.Metric, query []float32, code []byte) (float32, error) {
	vec, err := q.Decode(code)
	if err != nil {
		return 0, err
	}
	return scoring.Distance(metric, query, vec), nil
}

func (q *ScalarQuantizer) Tag() encoding.CodecTag { return encoding.CodecScalar }

func (q *ScalarQuantizer) Save(w io.Writer) error {
	if !q.trained {
		return ErrNotTrained
	}
	return gobSave(w, q.state)
}

func (q *ScalarQuantizer) Load(r io.Reader) error {
	var state scalarState
	if err := gobLoad(r, &state); err != nil {
		return err
	}
	q.state = state
	q.trained = true
	return nil
}

func init() {
	gob.Register(scalarState{})
}
