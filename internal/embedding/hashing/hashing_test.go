package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	p := New(0)
	require.Equal(t, DefaultDimensions, p.Dimensions())

	text := "Dark Star is one of the Grateful Dead's most famous songs."
	a, err := p.Embed(context.Background(), []string{text, text})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, a[0], a[1])

	b, err := New(0).Embed(context.Background(), []string{text})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])

	var norm float64
	for _, v := range a[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedPreservesOrder(t *testing.T) {
	p := New(64)
	vecs, err := p.Embed(context.Background(), []string{"jerry garcia guitar", "phil lesh bass"})
	require.NoError(t, err)

	single, err := p.Embed(context.Background(), []string{"phil lesh bass"})
	require.NoError(t, err)
	assert.Equal(t, single[0], vecs[1])
	assert.NotEqual(t, vecs[0], vecs[1])
	assert.Len(t, vecs[0], 64)
}

func TestEmbedEmptyTextIsZeroVector(t *testing.T) {
	vecs, err := New(16).Embed(context.Background(), []string{"   "})
	require.NoError(t, err)
	for _, v := range vecs[0] {
		assert.Zero(t, v)
	}
}

func TestEmbedHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(16).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The Dead’s show at Barton Hall, May 8 1977!")
	assert.Equal(t, []string{"dead's", "show", "barton", "hall", "may", "8", "1977"}, got)
}

func TestModelID(t *testing.T) {
	assert.Equal(t, "feature-hash-384", New(384).ModelID())
}
