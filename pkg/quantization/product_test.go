package quantization

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = rng.Float32()*2 - 1
		}
		out[i] = vec
	}
	return out
}

func TestProductQuantizerTrainEncodeDecode(t *testing.T) {
	sample := randomVectors(64, 8, 1)
	q := NewProductQuantizer(4)
	require.NoError(t, q.Train(sample))
	require.True(t, q.Trained())

	code, err := q.Encode(sample[0])
	require.NoError(t, err)
	assert.Len(t, code, 4)

	decoded, err := q.Decode(code)
	require.NoError(t, err)
	assert.Len(t, decoded, 8)
}

func TestProductQuantizerSubspaceFallback(t *testing.T) {
	sample := randomVectors(16, 6, 2)
	q := NewProductQuantizer(4) // 6 is not divisible by 4
	require.NoError(t, q.Train(sample))
	assert.Equal(t, 0, 6%q.state.Subspaces)
}

func TestProductQuantizerScoreEuclideanNonNegative(t *testing.T) {
	sample := randomVectors(64, 8, 3)
	q := NewProductQuantizer(4)
	require.NoError(t, q.Train(sample))

	code, err := q.Encode(sample[0])
	require.NoError(t, err)

	score, err := q.Score(scoring.Euclidean, sample[0], code)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, float32(0))
}

func TestProductQuantizerSaveLoad(t *testing.T) {
	sample := randomVectors(32, 8, 4)
	q := NewProductQuantizer(2)
	require.NoError(t, q.Train(sample))

	var buf bytes.Buffer
	require.NoError(t, q.Save(&buf))

	loaded := NewProductQuantizer(2)
	require.NoError(t, loaded.Load(&buf))

	code, _ := q.Encode(sample[0])
	loadedCode, _ := loaded.Encode(sample[0])
	assert.Equal(t, code, loadedCode)
}
