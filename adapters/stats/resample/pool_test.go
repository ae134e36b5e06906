package resample

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photonlag/adapters/rng"
	"photonlag/internal/errors"
)

func draw(r *rand.Rand, _ []float64) float64 { return r.Float64() }

func TestMap_DeterministicAcrossWorkerCounts(t *testing.T) {
	seeded := rng.NewSeededRNG(7)

	one, err := NewPool(seeded, 1, 64).Map(context.Background(), "perm", 1000, 0, draw)
	require.NoError(t, err)
	many, err := NewPool(seeded, 8, 64).Map(context.Background(), "perm", 1000, 0, draw)
	require.NoError(t, err)

	assert.Equal(t, one, many)
	assert.Len(t, one, 1000)
}

func TestMap_StreamsDiffer(t *testing.T) {
	pool := NewPool(rng.NewSeededRNG(7), 4, 64)
	a, err := pool.Map(context.Background(), "perm", 10, 0, draw)
	require.NoError(t, err)
	b, err := pool.Map(context.Background(), "boot", 10, 0, draw)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestMap_CancelledContextIsIncomplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPool(rng.NewSeededRNG(1), 2, 16).Map(ctx, "perm", 100, 0, draw)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIncomplete)
}

func TestMap_ScratchBufferPerChunk(t *testing.T) {
	pool := NewPool(rng.NewSeededRNG(3), 4, 10)
	vals, err := pool.Map(context.Background(), "buf", 35, 3, func(_ *rand.Rand, buf []float64) float64 {
		buf[0]++
		return buf[0]
	})
	require.NoError(t, err)
	// The counter restarts at every chunk boundary.
	assert.Equal(t, 1.0, vals[0])
	assert.Equal(t, 10.0, vals[9])
	assert.Equal(t, 1.0, vals[10])
	assert.Equal(t, 5.0, vals[34])
}

func TestMap_ZeroTrials(t *testing.T) {
	vals, err := NewPool(rng.NewSeededRNG(3), 0, 0).Map(context.Background(), "x", 0, 0, draw)
	require.NoError(t, err)
	assert.Nil(t, vals)
}
