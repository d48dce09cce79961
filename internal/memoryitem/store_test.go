package memoryitem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutEnforcesUniqueKeysViaUpdate(t *testing.T) {
	s := NewStore(10)
	now := time.Now()
	s.Put("k1", "v1", nil, now)
	s.Put("k1", "v2", nil, now.Add(time.Second))
	assert.Equal(t, 1, s.Len())

	item, ok := s.Get("k1", now)
	require.True(t, ok)
	assert.Equal(t, "v2", item.Content)
}

func TestCapacityEvictsLeastFrequentlyUsedFirst(t *testing.T) {
	s := NewStore(2)
	now := time.Now()
	s.Put("a", "a", nil, now)
	s.Put("b", "b", nil, now)

	s.Get("a", now.Add(time.Second))
	s.Get("a", now.Add(2*time.Second))

	s.Put("c", "c", nil, now.Add(3*time.Second))

	assert.Equal(t, 2, s.Len())
	_, hasB := s.Get("b", now)
	assert.False(t, hasB, "b had fewer accesses than a and should be evicted")
	_, hasA := s.Get("a", now)
	assert.True(t, hasA)
	_, hasC := s.Get("c", now)
	assert.True(t, hasC)
}

func TestCapacityTiesBrokenByLeastRecentlyUsed(t *testing.T) {
	s := NewStore(2)
	now := time.Now()
	s.Put("a", "a", nil, now)
	s.Put("b", "b", nil, now.Add(time.Second))

	s.Put("c", "c", nil, now.Add(2*time.Second))

	_, hasA := s.Get("a", now)
	assert.False(t, hasA, "equal access counts break tie on oldest last-accessed")
}

func TestDeleteAndClear(t *testing.T) {
	s := NewStore(10)
	now := time.Now()
	s.Put("a", "a", nil, now)
	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))

	s.Put("b", "b", nil, now)
	s.Clear()
	assert.Equal(t, 0, s.Len())
}
