package nn

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Dropout zeroes elements with probability P and rescales the survivors by
// 1/(1-P), so the expected activation is unchanged. It is a no-op outside
// training mode or when P is zero.
type Dropout struct {
	P   float64
	rng *rng.UniformGenerator
}

// NewDropout creates a dropout layer. The seed makes masks reproducible
// across runs with the same call sequence.
func NewDropout(p float64, seed int64) (*Dropout, error) {
	if p < 0 || p >= 1 {
		return nil, errors.Errorf("dropout: probability %v outside [0, 1)", p)
	}
	return &Dropout{P: p, rng: rng.NewUniformGenerator(seed)}, nil
}

// Forward applies dropout to x. When training is false or P is zero the
// input tensor is returned unchanged.
func (d *Dropout) Forward(x *tensor.Dense, training bool) *tensor.Dense {
	if !training || d.P == 0 {
		return x
	}

	in := x.Float32s()
	out := make([]float32, len(in))
	scale := float32(1 / (1 - d.P))
	for i, v := range in {
		if d.rng.Float64() >= d.P {
			out[i] = v * scale
		}
	}
	return tensor.New(tensor.WithShape(x.Shape().Clone()...), tensor.WithBacking(out))
}
