package thoughts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := NewRing()
	for i := 0; i < Capacity+2; i++ {
		r.Push(string(rune('a' + i)))
	}
	got := r.Concatenated()
	assert.NotContains(t, got, "[internal thought] a")
	assert.NotContains(t, got, "[internal thought] b")
	assert.Contains(t, got, "[internal thought] g") // the last pushed item ('a'+6)
}

func TestRingHasAndConcatenatedEmpty(t *testing.T) {
	r := NewRing()
	assert.False(t, r.Has())
	assert.Equal(t, "", r.Concatenated())
}

func TestBuffersAreIndependent(t *testing.T) {
	th := New()
	th.Review.Push("reviewing")
	require.False(t, th.Focused.Has())
	assert.Contains(t, th.Review.Concatenated(), "reviewing")
	assert.Equal(t, "", th.Focused.Concatenated())
}

func TestActiveSelectsCorrectBuffer(t *testing.T) {
	th := New()
	assert.Same(t, th.Review, th.Active(false))
	assert.Same(t, th.Focused, th.Active(true))
}
