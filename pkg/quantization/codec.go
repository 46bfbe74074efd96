// Package quantization implements the core's codec layer: training,
// encoding, decoding, and scoring vectors in a compressed representation
// (spec.md §4.4). Every codec is sealed after Train — encode/decode never
// mutate state again.
package quantization

import (
	"encoding/gob"
	"errors"
	"io"

	"github.com/liliang-cn/vectorcore/internal/encoding"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

// ErrNotTrained is returned by Encode/Decode/Score before Train has run.
var ErrNotTrained = errors.New("quantization: codec not trained")

// Codec is the uniform interface the Collection uses regardless of which
// quantization mode it was configured with.
type Codec interface {
	// Train consumes up to len(sample) vectors (already capped by the
	// caller to training_sample_size) and seals the codec's state.
	// Training is idempotent given the same sample and seed.
	Train(sample [][]float32) error

	// Trained reports whether Train has completed.
	Trained() bool

	// Encode is a pure function of state and input.
	Encode(vec []float32) ([]byte, error)

	// Decode approximately inverts Encode. For Cosine collections the
	// caller is responsible for re-normalizing the result (see
	// NormalizingCodec below) — the invariant that stored vectors have
	// unit norm holds on the decoded representation, not the raw
	// reconstruction.
	Decode(code []byte) ([]float32, error)

	// Score computes the metric's distance between a raw query vector and
	// a stored code. SQ8 and Binary implement this as decode-then-metric;
	// Product Quantization uses an asymmetric distance table instead of a
	// full decode.
	Score(metric scoring.Metric, query []float32, code []byte) (float32, error)

	// Tag identifies the codec for the snapshot format's codec_tag field.
	Tag() encoding.CodecTag

	// Save/Load persist and restore sealed codec state (codec.bin).
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// NormalizingCodec wraps a Codec so that every Decode result is
// re-normalized to unit L2 norm, fulfilling spec.md §4.4's "Correctness
// boundary" for Cosine collections. PQ's Score path is left untouched,
// since its asymmetric distance table is computed directly against
// codebook centroids and is the documented exception to full decode.
type NormalizingCodec struct {
	Codec
}

// Decode re-normalizes the wrapped codec's reconstruction.
func (n NormalizingCodec) Decode(code []byte) ([]float32, error) {
	vec, err := n.Codec.Decode(code)
	if err != nil {
		return nil, err
	}
	normalized, _ := encoding.Normalize(vec)
	return normalized, nil
}

// noneCodec is the identity codec: vectors are stored uncompressed. It is
// the codec of every collection with quantization disabled; a collection
// whose quantizer is still untrained keeps that quantizer as its codec
// and stores raw vectors without going through any codec.
type noneCodec struct{}

// NewNoneCodec returns the always-trained passthrough codec.
func NewNoneCodec() Codec { return noneCodec{} }

func (noneCodec) Train(_ [][]float32) error { return nil }
func (noneCodec) Trained() bool             { return true }

func (noneCodec) Encode(vec []float32) ([]byte, error) {
	return encoding.EncodeVector(vec)
}

func (noneCodec) Decode(code []byte) ([]float32, error) {
	return encoding.DecodeVector(code)
}

func (c noneCodec) Score(metric scoring.Metric, query []float32, code []byte) (float32, error) {
	vec, err := c.Decode(code)
	if err != nil {
		return 0, err
	}
	return scoring.Distance(metric, query, vec), nil
}

func (noneCodec) Tag() encoding.CodecTag { return encoding.CodecNone }

func (noneCodec) Save(_ io.Writer) error { return nil }
func (noneCodec) Load(_ io.Reader) error { return nil }

// gobSave/gobLoad are the shared Save/Load bodies for the trained codecs
// below, matching the teacher's HNSW gob-based persistence in
// pkg/index/hnsw.go.
func gobSave(w io.Writer, state interface{}) error {
	return gob.NewEncoder(w).Encode(state)
}

func gobLoad(r io.Reader, state interface{}) error {
	return gob.NewDecoder(r).Decode(state)
}
