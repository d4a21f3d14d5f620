package nn

import (
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Weight initialization wraps gorgonia's InitWFn family so layers get the
// same distributions the reference training code used: Xavier uniform for
// attention projections, gain-scaled Xavier normal for ReLU stacks.

// XavierUniform returns a (rows, cols) weight tensor drawn from the
// Glorot/Xavier uniform distribution with gain 1.
func XavierUniform(rows, cols int) *tensor.Dense {
	backing := gorgonia.GlorotU(1.0)(tensor.Float32, rows, cols).([]float32)
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

// XavierNormalReLU returns a (rows, cols) weight tensor drawn from the
// Glorot/Xavier normal distribution with the ReLU gain √2.
func XavierNormalReLU(rows, cols int) *tensor.Dense {
	backing := gorgonia.GlorotN(math.Sqrt2)(tensor.Float32, rows, cols).([]float32)
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

// Zeros returns a zero-initialized vector of length n, used for every bias.
func Zeros(n int) *tensor.Dense {
	backing := gorgonia.Zeroes()(tensor.Float32, n).([]float32)
	return tensor.New(tensor.WithShape(n), tensor.WithBacking(backing))
}

// Ones returns a one-initialized vector of length n, used for norm scales.
func Ones(n int) *tensor.Dense {
	backing := make([]float32, n)
	for i := range backing {
		backing[i] = 1
	}
	return tensor.New(tensor.WithShape(n), tensor.WithBacking(backing))
}
