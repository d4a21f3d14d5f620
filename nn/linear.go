package nn

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Linear is a fully connected layer y = x·W + b applied over the trailing
// axis of its input; any number of leading axes is allowed.
type Linear struct {
	// Weight has shape (in, out).
	Weight *Param
	// Bias has shape (out) and may be nil.
	Bias *Param
}

// NewLinear creates a linear layer with Xavier-uniform weights and a zero
// bias, matching the attention projection initialization.
func NewLinear(name string, in, out int) *Linear {
	return &Linear{
		Weight: NewParam(name+".weight", XavierUniform(in, out)),
		Bias:   NewParam(name+".bias", Zeros(out)),
	}
}

// NewLinearReLU creates a linear layer with gain-√2 Xavier-normal weights and
// a zero bias, the initialization for layers feeding a ReLU stack.
func NewLinearReLU(name string, in, out int) *Linear {
	return &Linear{
		Weight: NewParam(name+".weight", XavierNormalReLU(in, out)),
		Bias:   NewParam(name+".bias", Zeros(out)),
	}
}

// In returns the input feature width.
func (l *Linear) In() int { return l.Weight.Value.Shape()[0] }

// Out returns the output feature width.
func (l *Linear) Out() int { return l.Weight.Value.Shape()[1] }

// Params returns the layer's parameters.
func (l *Linear) Params() []*Param {
	if l.Bias == nil {
		return []*Param{l.Weight}
	}
	return []*Param{l.Weight, l.Bias}
}

// Forward applies the layer to x of shape (..., in) and returns a new tensor
// of shape (..., out). The input is not mutated.
func (l *Linear) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	shape := x.Shape()
	in := shape[len(shape)-1]
	if in != l.In() {
		return nil, errors.Errorf("linear %s: input width %d does not match weight width %d", l.Weight.Name, in, l.In())
	}

	rows := shape.TotalSize() / in
	flat := x.Clone().(*tensor.Dense)
	if err := flat.Reshape(rows, in); err != nil {
		return nil, errors.Wrap(err, "linear: flatten input")
	}

	out, err := flat.MatMul(l.Weight.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "linear %s: matmul", l.Weight.Name)
	}

	if l.Bias != nil {
		width := l.Out()
		data := out.Float32s()
		bias := l.Bias.Value.Float32s()
		for r := 0; r < rows; r++ {
			base := r * width
			for c := 0; c < width; c++ {
				data[base+c] += bias[c]
			}
		}
	}

	outShape := append(append([]int{}, shape[:len(shape)-1]...), l.Out())
	if err := out.Reshape(outShape...); err != nil {
		return nil, errors.Wrap(err, "linear: restore output shape")
	}
	return out, nil
}

func (l *Linear) String() string {
	return fmt.Sprintf("Linear(%d, %d)", l.In(), l.Out())
}
