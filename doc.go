// Package vectorcore is an embeddable vector database and semantic search
// engine: collections of high-dimensional vectors searched by an HNSW
// (Hierarchical Navigable Small World) approximate-nearest-neighbor graph,
// with optional quantization and hybrid dense/sparse scoring.
//
// # Quick start
//
//	store := vectorcore.NewStore(vectorcore.NopLogger())
//	cfg := vectorcore.DefaultCollectionConfig(128)
//	if err := store.CreateCollection("docs", cfg); err != nil {
//	    log.Fatal(err)
//	}
//
//	coll, _ := store.GetCollection("docs")
//	coll.Insert([]vectorcore.VectorInput{
//	    {ID: "a", Vector: someEmbedding, Payload: map[string]interface{}{"category": "news"}},
//	})
//
//	results, _ := coll.Search(queryEmbedding, 10, 0, nil)
//
// The root package re-exports pkg/core's Store, Collection, and config
// types so callers don't need to import pkg/core directly; pkg/index,
// pkg/quantization, pkg/scoring, and pkg/payload remain importable on
// their own for callers that only need one layer (e.g. a standalone HNSW
// graph without the collection/payload machinery).
package vectorcore

import (
	"github.com/liliang-cn/vectorcore/pkg/core"
	"github.com/liliang-cn/vectorcore/pkg/payload"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

type (
	// Store owns the set of named collections (spec §4.1).
	Store = core.Store
	// Collection owns one HNSW index, codec, and payload store (spec §4.2).
	Collection = core.Collection
	// CollectionConfig is a collection's immutable-after-creation configuration.
	CollectionConfig = core.CollectionConfig
	// HNSWConfig holds the construction/search parameters of a collection's graph.
	HNSWConfig = core.HNSWConfig
	// QuantizationConfig controls whether and how a collection compresses vectors.
	QuantizationConfig = core.QuantizationConfig
	// QuantizationMode selects a codec.
	QuantizationMode = core.QuantizationMode
	// VectorInput is one point of an Insert batch.
	VectorInput = core.VectorInput
	// InsertResult is the outcome of a batch Insert.
	InsertResult = core.InsertResult
	// InsertFailure reports why one batch element did not commit.
	InsertFailure = core.InsertFailure
	// SearchResult is one hit returned by Search/HybridSearch/RangeSearch.
	SearchResult = core.SearchResult
	// Cursor is the opaque scroll position returned by Collection.Scroll.
	Cursor = core.Cursor
	// Stats is a collection's observability snapshot.
	Stats = core.Stats
	// Logger is the logging seam every Store and Collection operation writes through.
	Logger = core.Logger
	// Metric identifies a collection's distance metric.
	Metric = scoring.Metric
	// SparseVector is a sparse companion to a dense vector.
	SparseVector = scoring.SparseVector
	// FusionMethod selects a hybrid-search combiner (RRF or weighted linear).
	FusionMethod = scoring.FusionMethod
	// FusedResult is one candidate's fused hybrid score.
	FusedResult = scoring.FusedResult
	// Expression is a payload filter tree node.
	Expression = payload.Expression
)

const (
	Cosine     = scoring.Cosine
	Euclidean  = scoring.Euclidean
	DotProduct = scoring.DotProduct

	QuantizationNone    = core.QuantizationNone
	QuantizationScalar  = core.QuantizationScalar
	QuantizationProduct = core.QuantizationProduct
	QuantizationBinary  = core.QuantizationBinary

	RRF            = scoring.RRF
	WeightedLinear = scoring.WeightedLinear
)

// NewStore returns an empty Store. A nil logger defaults to NopLogger.
func NewStore(logger Logger) *Store { return core.NewStore(logger) }

// NopLogger discards every log message.
func NopLogger() Logger { return core.NopLogger() }

// NewStdLogger returns a Logger writing to stdout at the given minimum level.
func NewStdLogger(minLevel core.LogLevel) Logger { return core.NewStdLogger(minLevel) }

// ParseLogLevel parses a level name ("debug", "info", "warn", "error")
// case-insensitively, for CLI flags and config files.
func ParseLogLevel(s string) (core.LogLevel, error) { return core.ParseLevel(s) }

// DefaultCollectionConfig returns a Cosine, unquantized configuration for
// the given dimension.
func DefaultCollectionConfig(dim int) CollectionConfig { return core.DefaultCollectionConfig(dim) }

// DefaultHNSWConfig returns the engine's default HNSW parameters.
func DefaultHNSWConfig() HNSWConfig { return core.DefaultHNSWConfig() }

// DefaultQuantizationConfig returns the disabled-quantization default.
func DefaultQuantizationConfig() QuantizationConfig { return core.DefaultQuantizationConfig() }

// EqExpr builds an equality payload-filter leaf.
func EqExpr(field string, value interface{}) *Expression { return payload.EqExpr(field, value) }

// AndExpr combines filter expressions with logical AND.
func AndExpr(children ...*Expression) *Expression { return payload.AndExpr(children...) }

// OrExpr combines filter expressions with logical OR.
func OrExpr(children ...*Expression) *Expression { return payload.OrExpr(children...) }

// NotExpr negates a filter expression.
func NotExpr(child *Expression) *Expression { return payload.NotExpr(child) }
