package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/vectorcore/internal/encoding"
)

func TestStoreInsertGetDelete(t *testing.T) {
	s := New()
	internal, err := s.Insert("doc-1", encoding.Payload{"category": "tech"})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), internal)

	record, ok := s.Get(internal)
	require.True(t, ok)
	assert.Equal(t, "doc-1", record.ExternalID)

	require.NoError(t, s.Delete("doc-1"))
	_, ok = s.Get(internal)
	assert.False(t, ok)
	assert.True(t, s.IsTombstoned(internal))
}

func TestStoreInsertDuplicateRejected(t *testing.T) {
	s := New()
	_, err := s.Insert("doc-1", encoding.Payload{})
	require.NoError(t, err)
	_, err = s.Insert("doc-1", encoding.Payload{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestStoreReinsertAfterDeleteGetsNewInternalID(t *testing.T) {
	s := New()
	first, err := s.Insert("doc-1", encoding.Payload{})
	require.NoError(t, err)
	require.NoError(t, s.Delete("doc-1"))

	second, err := s.Insert("doc-1", encoding.Payload{})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestStoreFilterMatchesEquality(t *testing.T) {
	s := New()
	_, _ = s.Insert("a", encoding.Payload{"category": "tech"})
	_, _ = s.Insert("b", encoding.Payload{"category": "news"})
	_, _ = s.Insert("c", encoding.Payload{"category": "tech"})

	matched, err := s.Filter(EqExpr("category", "tech"))
	require.NoError(t, err)
	assert.Len(t, matched, 2)
}

func TestStoreFilterNestedPath(t *testing.T) {
	s := New()
	_, _ = s.Insert("a", encoding.Payload{"meta": map[string]interface{}{"lang": "en"}})
	_, _ = s.Insert("b", encoding.Payload{"meta": map[string]interface{}{"lang": "fr"}})

	matched, err := s.Filter(EqExpr("meta.lang", "en"))
	require.NoError(t, err)
	assert.Len(t, matched, 1)
}

func TestStoreScrollPaginates(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		_, _ = s.Insert(string(rune('a'+i)), encoding.Payload{})
	}
	page1, more := s.Scroll(0, 2)
	// afterInternal=0 excludes internal 0, so page1 starts at 1.
	assert.Equal(t, []uint32{1, 2}, page1)
	assert.True(t, more)

	page2, more := s.Scroll(2, 2)
	assert.Equal(t, []uint32{3, 4}, page2)
	assert.False(t, more)
}

func TestStoreTombstoneRatio(t *testing.T) {
	s := New()
	_, _ = s.Insert("a", encoding.Payload{})
	_, _ = s.Insert("b", encoding.Payload{})
	require.NoError(t, s.Delete("a"))
	assert.InDelta(t, 0.5, s.TombstoneRatio(), 1e-9)
}
