package batch

import (
	"image"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-pose/images"
)

// Input is a tagged union over the accepted forward-pass input forms:
// an already padded batch, a uniform 4D tensor, or a list of per-image
// tensors. Exactly one variant is set; Resolve converts it into the
// canonical NestedTensor representation.
type Input struct {
	batched *NestedTensor
	dense   *tensor.Dense
	list    []*tensor.Dense
}

// OfBatch wraps an already padded batch.
func OfBatch(n *NestedTensor) Input { return Input{batched: n} }

// OfTensor wraps a uniform (B, C, H, W) tensor.
func OfTensor(t *tensor.Dense) Input { return Input{dense: t} }

// OfList wraps a list of (C, H, W) image tensors of possibly mixed sizes.
func OfList(ts []*tensor.Dense) Input { return Input{list: ts} }

// OfImages converts decoded images into CHW tensors and wraps them as a
// list input.
func OfImages(imgs []image.Image) Input {
	ts := make([]*tensor.Dense, len(imgs))
	for i, img := range imgs {
		ts[i] = images.ToCHW(img)
	}
	return Input{list: ts}
}

// Resolve produces the canonical padded batch for whichever variant is set.
func (in Input) Resolve() (*NestedTensor, error) {
	switch {
	case in.batched != nil:
		return in.batched, nil
	case in.dense != nil:
		return FromTensor(in.dense)
	case in.list != nil:
		return FromList(in.list)
	}
	return nil, errors.New("batch: empty input")
}
