package core

import (
	"github.com/liliang-cn/vectorcore/pkg/quantization"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

// QuantizationMode selects which Codec a collection trains once enough
// points have been inserted.
type QuantizationMode int

const (
	QuantizationNone QuantizationMode = iota
	QuantizationScalar
	QuantizationProduct
	QuantizationBinary
)

// HNSWConfig mirrors the teacher's HNSWConfig shape, minus the Enabled
// flag — every collection in this engine is HNSW-backed, so there is no
// flat/IVF toggle to carry.
type HNSWConfig struct {
	M              int
	EfConstruction int
	EfSearch       int
	Seed           int64
}

// DefaultHNSWConfig matches index.DefaultConfig's M/efConstruction.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 16, EfConstruction: 200, EfSearch: 50, Seed: 1}
}

// QuantizationConfig controls whether and how a collection compresses
// its stored vectors once trained.
type QuantizationConfig struct {
	Mode               QuantizationMode
	TrainingSampleSize int // points buffered before Train fires
	ProductSubspaces   int // only consulted when Mode == QuantizationProduct
	DecodeCacheSize    int // 0 disables the LRU decode cache
}

// DefaultQuantizationConfig disables quantization, matching spec.md's
// "vectors are stored uncompressed" default.
func DefaultQuantizationConfig() QuantizationConfig {
	return QuantizationConfig{
		Mode:               QuantizationNone,
		TrainingSampleSize: 10000,
		ProductSubspaces:   8,
		DecodeCacheSize:    4096,
	}
}

// CollectionConfig is the immutable-after-creation configuration of one
// collection (spec.md §3: "Dim, Metric ... are fixed at creation").
type CollectionConfig struct {
	Dim          int
	Metric       scoring.Metric
	HNSW         HNSWConfig
	Quantization QuantizationConfig
	// EuclideanSqrt reports the user-facing Euclidean score as a true
	// distance (sqrt applied) instead of the internally-used squared
	// distance. Only consulted when Metric == scoring.Euclidean.
	EuclideanSqrt bool
	// MaxVectors bounds the collection's live point count (spec.md §7:
	// "Capacity — collection at hard maximum (rare; documented per
	// build)"). Zero means unbounded.
	MaxVectors int
}

// DefaultCollectionConfig returns a Cosine, unquantized collection
// configuration; Dim must still be set by the caller since there is no
// sane default dimension.
func DefaultCollectionConfig(dim int) CollectionConfig {
	return CollectionConfig{
		Dim:          dim,
		Metric:       scoring.Cosine,
		HNSW:         DefaultHNSWConfig(),
		Quantization: DefaultQuantizationConfig(),
	}
}

func (c CollectionConfig) validate() error {
	if c.Dim <= 0 {
		return ErrInvalidDimension
	}
	if c.HNSW.M <= 0 || c.HNSW.EfConstruction <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxVectors < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// newCodec constructs the untrained Codec a fresh collection starts with,
// per its QuantizationConfig. Cosine collections get every Decode result
// re-normalized (spec.md §4.4's "Correctness boundary"), since a
// quantizer's lossy reconstruction is not guaranteed to stay unit-norm.
func newCodec(cfg QuantizationConfig, metric scoring.Metric) quantization.Codec {
	var codec quantization.Codec
	switch cfg.Mode {
	case QuantizationScalar:
		codec = quantization.NewScalarQuantizer()
	case QuantizationProduct:
		codec = quantization.NewProductQuantizer(cfg.ProductSubspaces)
	case QuantizationBinary:
		codec = quantization.NewBinaryQuantizer()
	default:
		return quantization.NewNoneCodec()
	}
	codec = quantization.NewCachingCodec(codec, cfg.DecodeCacheSize)
	if metric == scoring.Cosine {
		codec = quantization.NormalizingCodec{Codec: codec}
	}
	return codec
}
