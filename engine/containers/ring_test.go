package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingPushEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	assert.False(t, r.Push(1))
	assert.False(t, r.Push(2))
	assert.False(t, r.Push(3))
	require.True(t, r.Full())
	assert.True(t, r.Push(4))

	var got []int
	r.Each(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{2, 3, 4}, got)

	oldest, ok := r.Oldest()
	require.True(t, ok)
	assert.Equal(t, 2, oldest)
}

func TestRingPartialAndClear(t *testing.T) {
	r := NewRing[string](4)
	_, ok := r.Oldest()
	assert.False(t, ok)

	r.Push("a")
	r.Push("b")
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 4, r.Cap())
	oldest, _ := r.Oldest()
	assert.Equal(t, "a", oldest)

	r.Clear()
	assert.True(t, r.IsEmpty())
}
