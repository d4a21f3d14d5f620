package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestDropoutNoOpCases(t *testing.T) {
	x := tensor.New(tensor.WithShape(4), tensor.WithBacking([]float32{1, 2, 3, 4}))

	zero, err := NewDropout(0, 1)
	require.NoError(t, err)
	require.Same(t, x, zero.Forward(x, true), "p=0 returns the input unchanged")

	half, err := NewDropout(0.5, 1)
	require.NoError(t, err)
	require.Same(t, x, half.Forward(x, false), "inference mode returns the input unchanged")
}

func TestDropoutScalesSurvivors(t *testing.T) {
	d, err := NewDropout(0.25, 7)
	require.NoError(t, err)

	backing := make([]float32, 4096)
	for i := range backing {
		backing[i] = 1
	}
	x := tensor.New(tensor.WithShape(4096), tensor.WithBacking(backing))

	out := d.Forward(x, true)
	kept := 0
	for _, v := range out.Float32s() {
		if v != 0 {
			kept++
			assert.InDelta(t, float32(4)/3, v, 1e-6, "survivors scale by 1/(1-p)")
		}
	}
	// Keep rate concentrates near 0.75 at this sample size.
	assert.InDelta(t, 0.75, float64(kept)/4096, 0.05)
}

func TestDropoutSeedReproducibility(t *testing.T) {
	x := tensor.New(tensor.WithShape(64), tensor.WithBacking(make([]float32, 64)))
	for i := range x.Float32s() {
		x.Float32s()[i] = float32(i)
	}

	a, err := NewDropout(0.5, 42)
	require.NoError(t, err)
	b, err := NewDropout(0.5, 42)
	require.NoError(t, err)

	require.Equal(t, a.Forward(x, true).Float32s(), b.Forward(x, true).Float32s())
}

func TestNewDropoutRejectsBadProbability(t *testing.T) {
	_, err := NewDropout(1, 0)
	require.Error(t, err)
	_, err = NewDropout(-0.1, 0)
	require.Error(t, err)
}
