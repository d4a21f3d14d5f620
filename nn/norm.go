package nn

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// GroupNorm normalizes the trailing channel axis of a (batch, positions,
// channels) tensor in groups. Statistics are computed per (batch, group)
// across every position and the group's channels, then a per-channel affine
// transform is applied, matching torch-style group normalization.
type GroupNorm struct {
	Groups int
	Eps    float32

	// Weight and Bias are the per-channel affine parameters, shapes (C).
	Weight *Param
	Bias   *Param
}

// NewGroupNorm creates a GroupNorm with unit scale and zero shift.
func NewGroupNorm(name string, groups, channels int) (*GroupNorm, error) {
	if groups <= 0 || channels%groups != 0 {
		return nil, errors.Errorf("groupnorm %s: %d channels not divisible into %d groups", name, channels, groups)
	}
	return &GroupNorm{
		Groups: groups,
		Eps:    1e-5,
		Weight: NewParam(name+".weight", Ones(channels)),
		Bias:   NewParam(name+".bias", Zeros(channels)),
	}, nil
}

// Params returns the affine parameters.
func (g *GroupNorm) Params() []*Param {
	return []*Param{g.Weight, g.Bias}
}

// Forward normalizes x of shape (B, N, C) and returns a new tensor of the
// same shape. The input is not mutated.
func (g *GroupNorm) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	shape := x.Shape()
	if len(shape) != 3 {
		return nil, errors.Errorf("groupnorm: want a 3D (batch, positions, channels) input, got %v", shape)
	}
	b, n, c := shape[0], shape[1], shape[2]
	if c != g.Weight.Value.Shape()[0] {
		return nil, errors.Errorf("groupnorm: input has %d channels, layer has %d", c, g.Weight.Value.Shape()[0])
	}

	in := x.Float32s()
	out := make([]float32, len(in))
	scale := g.Weight.Value.Float32s()
	shift := g.Bias.Value.Float32s()

	perGroup := c / g.Groups
	for bi := 0; bi < b; bi++ {
		for gi := 0; gi < g.Groups; gi++ {
			c0 := gi * perGroup
			c1 := c0 + perGroup

			var sum float32
			for ni := 0; ni < n; ni++ {
				row := (bi*n + ni) * c
				for ci := c0; ci < c1; ci++ {
					sum += in[row+ci]
				}
			}
			count := float32(n * perGroup)
			mean := sum / count

			var sqsum float32
			for ni := 0; ni < n; ni++ {
				row := (bi*n + ni) * c
				for ci := c0; ci < c1; ci++ {
					d := in[row+ci] - mean
					sqsum += d * d
				}
			}
			inv := 1 / math32.Sqrt(sqsum/count+g.Eps)

			for ni := 0; ni < n; ni++ {
				row := (bi*n + ni) * c
				for ci := c0; ci < c1; ci++ {
					out[row+ci] = (in[row+ci]-mean)*inv*scale[ci] + shift[ci]
				}
			}
		}
	}

	return tensor.New(tensor.WithShape(b, n, c), tensor.WithBacking(out)), nil
}
