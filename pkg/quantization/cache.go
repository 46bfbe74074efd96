package quantization

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

// CachingCodec wraps a Codec with an LRU cache of decoded vectors, keyed
// by the raw code bytes. PQ and SQ8 decode cost grows with dimension and
// dominates repeated re-scoring of the same candidate across concurrent
// queries, so caching the decode (not the encode, which is rarely
// repeated) is the high-value place to spend the cache budget.
type CachingCodec struct {
	Codec
	cache *lru.Cache[string, []float32]
}

// NewCachingCodec wraps codec with a decode cache holding up to size
// entries. size <= 0 disables caching and returns codec unwrapped.
func NewCachingCodec(codec Codec, size int) Codec {
	if size <= 0 {
		return codec
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return codec
	}
	return &CachingCodec{Codec: codec, cache: cache}
}

func (c *CachingCodec) Decode(code []byte) ([]float32, error) {
	key := string(code)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.Codec.Decode(code)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachingCodec) Score(metric scoring.Metric, query []float32, code []byte) (float32, error) {
	// Product quantization's Score never decodes (it uses the asymmetric
	// distance table), so routing through the cached Decode would add
	// cost instead of saving it. Scalar and binary codecs implement Score
	// as decode-then-metric, so borrowing the cache here is a genuine win.
	if _, isPQ := c.Codec.(*ProductQuantizer); isPQ {
		return c.Codec.Score(metric, query, code)
	}
	vec, err := c.Decode(code)
	if err != nil {
		return 0, err
	}
	return scoring.Distance(metric, query, vec), nil
}

var _ Codec = (*CachingCodec)(nil)
