package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIsUniqueAndIncreasing(t *testing.T) {
	g, err := New(7)
	require.NoError(t, err)

	seen := make(map[int64]struct{}, 1000)
	var last int64
	for i := 0; i < 1000; i++ {
		id := g.Next()
		assert.Greater(t, id, last)
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
		last = id
	}
}

func TestNewRejectsOutOfRangeNode(t *testing.T) {
	_, err := New(4096)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.NotEmpty(t, Default().NextString())
}
