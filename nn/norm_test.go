package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestGroupNormNormalizesPerGroup(t *testing.T) {
	g, err := NewGroupNorm("g", 2, 4)
	require.NoError(t, err)

	backing := make([]float32, 2*3*4)
	for i := range backing {
		backing[i] = float32(i)*0.7 - 3
	}
	x := tensor.New(tensor.WithShape(2, 3, 4), tensor.WithBacking(backing))

	out, err := g.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 4}, []int(out.Shape()))

	// With unit scale and zero shift, every (batch, group) block must have
	// zero mean and unit variance over its positions and channels.
	data := out.Float32s()
	for b := 0; b < 2; b++ {
		for group := 0; group < 2; group++ {
			var sum, sqsum float32
			for n := 0; n < 3; n++ {
				for c := group * 2; c < group*2+2; c++ {
					v := data[(b*3+n)*4+c]
					sum += v
					sqsum += v * v
				}
			}
			mean := sum / 6
			assert.InDelta(t, 0, mean, 1e-5, "group mean")
			assert.InDelta(t, 1, sqsum/6-mean*mean, 1e-3, "group variance")
		}
	}
}

func TestGroupNormAffine(t *testing.T) {
	g, err := NewGroupNorm("g", 1, 2)
	require.NoError(t, err)
	copy(g.Weight.Value.Float32s(), []float32{2, 2})
	copy(g.Bias.Value.Float32s(), []float32{5, 5})

	x := tensor.New(tensor.WithShape(1, 2, 2), tensor.WithBacking([]float32{-1, 1, -1, 1}))
	out, err := g.Forward(x)
	require.NoError(t, err)

	// Inputs normalize to ±1, then scale by 2 and shift by 5.
	assert.InDeltaSlice(t, []float32{3, 7, 3, 7}, out.Float32s(), 1e-3)
}

func TestGroupNormShapeErrors(t *testing.T) {
	_, err := NewGroupNorm("g", 8, 20)
	require.Error(t, err, "20 channels cannot split into 8 groups")

	g, err := NewGroupNorm("g", 2, 4)
	require.NoError(t, err)

	_, err = g.Forward(tensor.New(tensor.WithShape(2, 4), tensor.WithBacking(make([]float32, 8))))
	require.Error(t, err, "2D input must be rejected")

	_, err = g.Forward(tensor.New(tensor.WithShape(1, 3, 6), tensor.WithBacking(make([]float32, 18))))
	require.Error(t, err, "channel mismatch must be rejected")
}
