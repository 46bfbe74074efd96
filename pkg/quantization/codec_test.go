package quantization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/vectorcore/internal/encoding"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

func TestNoneCodecRoundTrip(t *testing.T) {
	c := NewNoneCodec()
	assert.True(t, c.Trained())
	assert.Equal(t, encoding.CodecNone, c.Tag())

	vec := []float32{1, 2, 3}
	code, err := c.Encode(vec)
	require.NoError(t, err)

	decoded, err := c.Decode(code)
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestNoneCodecScore(t *testing.T) {
	c := NewNoneCodec()
	code, err := c.Encode([]float32{1, 0, 0})
	require.NoError(t, err)
	score, err := c.Score(scoring.Euclidean, []float32{0, 0, 0}, code)
	require.NoError(t, err)
	assert.InDelta(t, 1, score, 1e-6)
}

func TestNormalizingCodecRenormalizesDecode(t *testing.T) {
	q := NewScalarQuantizer()
	require.NoError(t, q.Train([][]float32{{3, 4}, {0, 0}, {6, 8}}))
	normalizing := NormalizingCodec{Codec: q}

	code, err := normalizing.Encode([]float32{3, 4})
	require.NoError(t, err)

	decoded, err := normalizing.Decode(code)
	require.NoError(t, err)

	var sumSq float64
	for _, v := range decoded {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-3)
}
