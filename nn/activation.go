package nn

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ReLU returns max(0, x) elementwise as a new tensor.
func ReLU(x *tensor.Dense) (*tensor.Dense, error) {
	out, err := x.Apply(func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	})
	if err != nil {
		return nil, errors.Wrap(err, "relu")
	}
	return out.(*tensor.Dense), nil
}

// Sigmoid returns 1/(1+e^-x) elementwise as a new tensor.
func Sigmoid(x *tensor.Dense) (*tensor.Dense, error) {
	out, err := x.Apply(func(v float32) float32 {
		return 1 / (1 + math32.Exp(-v))
	})
	if err != nil {
		return nil, errors.Wrap(err, "sigmoid")
	}
	return out.(*tensor.Dense), nil
}

// Softmax normalizes x to a probability distribution along the given axis.
func Softmax(x *tensor.Dense, axis int) (*tensor.Dense, error) {
	out, err := tensor.SoftMax(x, axis)
	if err != nil {
		return nil, errors.Wrapf(err, "softmax over axis %d", axis)
	}
	return out.(*tensor.Dense), nil
}
