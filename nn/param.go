// Package nn - Layer primitives for forward-only neural network inference.
//
// Every array in this package is a float32 *tensor.Dense. Layers hold their
// learned state in exported Param fields so tests and loaders can read or
// replace weights directly, and every layer exposes Params() for optimizer
// and freezing bookkeeping.
package nn

import (
	"gorgonia.org/tensor"
)

// Param is a named learned tensor. Trainable is bookkeeping for an external
// optimizer: forward computation never reads it, so freezing a parameter can
// never change forward-pass values.
type Param struct {
	// Name identifies the parameter within its module, e.g. "q_linear.weight".
	Name string

	// Value is the parameter data, read by every forward call and mutated
	// only by an external optimizer between calls.
	Value *tensor.Dense

	// Trainable reports whether gradients should flow to this parameter.
	Trainable bool
}

// NewParam wraps a tensor as a trainable parameter.
func NewParam(name string, value *tensor.Dense) *Param {
	return &Param{Name: name, Value: value, Trainable: true}
}

// Freeze marks every parameter non-trainable.
func Freeze(params []*Param) {
	for _, p := range params {
		p.Trainable = false
	}
}
