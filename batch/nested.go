// Package batch - Padded image batches with validity masks.
//
// A NestedTensor packs images (or feature maps) of mixed spatial sizes into
// one dense tensor padded to the largest height and width in the batch,
// alongside a boolean mask marking the padded region. This is the single
// canonical input representation of the joint pose network; the Input type
// resolves the accepted input variants into it exactly once at the boundary.
package batch

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// NestedTensor is a padded batch plus its per-pixel validity mask.
type NestedTensor struct {
	// Tensors has shape (B, C, H, W), float32.
	Tensors *tensor.Dense

	// Mask has shape (B, H, W), bool; true marks padding (invalid pixels).
	Mask *tensor.Dense
}

// Decompose returns the padded tensor and the mask.
func (n *NestedTensor) Decompose() (*tensor.Dense, *tensor.Dense) {
	return n.Tensors, n.Mask
}

// FromList pads a list of (C, H, W) image tensors to their common maximum
// size and returns the batch with its mask. All images must share a channel
// count.
func FromList(list []*tensor.Dense) (*NestedTensor, error) {
	if len(list) == 0 {
		return nil, errors.New("batch: empty image list")
	}

	channels := -1
	maxH, maxW := 0, 0
	for i, t := range list {
		shape := t.Shape()
		if len(shape) != 3 {
			return nil, errors.Errorf("batch: image %d is %dD, want (C, H, W)", i, len(shape))
		}
		if channels == -1 {
			channels = shape[0]
		} else if shape[0] != channels {
			return nil, errors.Errorf("batch: image %d has %d channels, batch has %d", i, shape[0], channels)
		}
		if shape[1] > maxH {
			maxH = shape[1]
		}
		if shape[2] > maxW {
			maxW = shape[2]
		}
	}

	b := len(list)
	data := make([]float32, b*channels*maxH*maxW)
	mask := make([]bool, b*maxH*maxW)
	for i := range mask {
		mask[i] = true
	}

	for bi, t := range list {
		shape := t.Shape()
		h, w := shape[1], shape[2]
		src := t.Float32s()
		for c := 0; c < channels; c++ {
			for y := 0; y < h; y++ {
				dst := ((bi*channels+c)*maxH + y) * maxW
				row := (c*h + y) * w
				copy(data[dst:dst+w], src[row:row+w])
			}
		}
		for y := 0; y < h; y++ {
			row := (bi*maxH + y) * maxW
			for x := 0; x < w; x++ {
				mask[row+x] = false
			}
		}
	}

	return &NestedTensor{
		Tensors: tensor.New(tensor.WithShape(b, channels, maxH, maxW), tensor.WithBacking(data)),
		Mask:    tensor.New(tensor.WithShape(b, maxH, maxW), tensor.WithBacking(mask)),
	}, nil
}

// FromTensor wraps an already uniform (B, C, H, W) tensor with an all-valid
// mask.
func FromTensor(t *tensor.Dense) (*NestedTensor, error) {
	shape := t.Shape()
	if len(shape) != 4 {
		return nil, errors.Errorf("batch: want a 4D (B, C, H, W) tensor, got %v", shape)
	}
	b, h, w := shape[0], shape[2], shape[3]
	return &NestedTensor{
		Tensors: t,
		Mask:    tensor.New(tensor.WithShape(b, h, w), tensor.WithBacking(make([]bool, b*h*w))),
	}, nil
}
