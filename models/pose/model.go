package pose

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-pose/batch"
	"github.com/nvr-ai/go-pose/nn"
)

// Detector is the external object detection network. It exposes the
// sub-modules the pose network drives individually rather than a single
// opaque forward, because the pose head taps the transformer's final-layer
// query states before the detection heads consume them.
type Detector interface {
	// Backbone extracts multi-scale feature maps with matching positional
	// encodings from a padded batch. The last entry is the coarsest scale.
	Backbone(in *batch.NestedTensor) ([]*batch.NestedTensor, []*tensor.Dense, error)

	// InputProj projects a backbone feature map to the transformer width.
	InputProj(src *tensor.Dense) (*tensor.Dense, error)

	// Transformer refines the learned query embeddings against the projected
	// features, returning the per-decoder-layer hidden states
	// (L, B, Q, hidden) and the encoder memory.
	Transformer(src, mask, queryEmbed, pos *tensor.Dense) (*tensor.Dense, *tensor.Dense, error)

	// ClassEmbed and BBoxEmbed are the detection heads, applied per layer.
	ClassEmbed(hs *tensor.Dense) (*tensor.Dense, error)
	BBoxEmbed(hs *tensor.Dense) (*tensor.Dense, error)

	// QueryEmbed returns the learned query embeddings, shape (Q, hidden).
	QueryEmbed() *tensor.Dense

	// AuxLoss reports whether per-intermediate-layer outputs are wanted.
	AuxLoss() bool

	// HiddenDim and NumHeads describe the transformer configuration.
	HiddenDim() int
	NumHeads() int
}

// Model3DNet is the external 3D model feature network. The encoder output is
// batch-independent: one embedding per known 3D model, broadcast across the
// batch by the pose network.
type Model3DNet interface {
	// ForwardEncoder returns the model feature set, shape (M, numDims).
	ForwardEncoder() (*tensor.Dense, error)

	// ForwardDecoder reconstructs the models' point clouds with predicted
	// scales and centers from the encoder features.
	ForwardDecoder(feat *tensor.Dense) (points, scales, centers *tensor.Dense, err error)
}

// Freezable is implemented by collaborators whose parameters can be marked
// non-trainable for two-stage training.
type Freezable interface {
	Params() []*nn.Param
}

// Config configures the joint network.
type Config struct {
	// FreezeDetector marks every detector parameter non-trainable while the
	// detector still participates in the forward computation.
	FreezeDetector bool `json:"freeze_detector"`

	// AttentionDropout is applied to the attention weights in training mode.
	AttentionDropout float64 `json:"attention_dropout"`
}

// Net is the joint pose network: one forward pass runs the detector, the 3D
// model network, the query/model attention map and the prediction head, and
// assembles the Output record.
type Net struct {
	Detector Detector
	Model3D  Model3DNet

	Attention *nn.AttentionMap
	Head      *Head

	training bool
}

// New builds the joint network around an external detector and 3D model
// network. Attention and head dimensions are taken from the detector's
// transformer configuration.
func New(det Detector, model3d Model3DNet, cfg Config) (*Net, error) {
	hidden, heads := det.HiddenDim(), det.NumHeads()

	attention, err := nn.NewAttentionMap(hidden, hidden, heads, cfg.AttentionDropout)
	if err != nil {
		return nil, err
	}
	head, err := NewHead(hidden, heads)
	if err != nil {
		return nil, err
	}

	if cfg.FreezeDetector {
		if f, ok := det.(Freezable); ok {
			nn.Freeze(f.Params())
		}
	}

	return &Net{
		Detector:  det,
		Model3D:   model3d,
		Attention: attention,
		Head:      head,
	}, nil
}

// Params returns the pose-specific parameters (attention map and head); the
// collaborators own theirs.
func (n *Net) Params() []*nn.Param {
	return append(n.Attention.Params(), n.Head.Params()...)
}

// Train toggles training mode, which only controls attention dropout.
func (n *Net) Train(training bool) {
	n.training = training
}

// Forward runs one joint forward pass over the given input.
func (n *Net) Forward(in batch.Input) (*Output, error) {
	samples, err := in.Resolve()
	if err != nil {
		return nil, err
	}
	if samples.Mask == nil {
		return nil, errors.New("pose: batch has no validity mask")
	}

	features, pos, err := n.Detector.Backbone(samples)
	if err != nil {
		return nil, errors.Wrap(err, "pose: backbone")
	}
	if len(features) == 0 || len(pos) != len(features) {
		return nil, errors.Errorf("pose: backbone returned %d features and %d positional encodings", len(features), len(pos))
	}

	src, mask := features[len(features)-1].Decompose()
	if mask == nil {
		return nil, errors.New("pose: feature map has no validity mask")
	}

	srcProj, err := n.Detector.InputProj(src)
	if err != nil {
		return nil, errors.Wrap(err, "pose: input projection")
	}

	hs, _, err := n.Detector.Transformer(srcProj, mask, n.Detector.QueryEmbed(), pos[len(pos)-1])
	if err != nil {
		return nil, errors.Wrap(err, "pose: transformer")
	}
	if hs.Dims() != 4 || hs.Shape()[3] != n.Detector.HiddenDim() {
		return nil, errors.Errorf("pose: transformer states %v do not match hidden dim %d", hs.Shape(), n.Detector.HiddenDim())
	}

	outClass, err := n.Detector.ClassEmbed(hs)
	if err != nil {
		return nil, errors.Wrap(err, "pose: class head")
	}
	outCoord, err := n.Detector.BBoxEmbed(hs)
	if err != nil {
		return nil, errors.Wrap(err, "pose: bbox head")
	}
	if outCoord, err = nn.Sigmoid(outCoord); err != nil {
		return nil, err
	}

	layers := hs.Shape()[0]
	out := &Output{}
	if out.PredLogits, err = layerOf(outClass, layers-1); err != nil {
		return nil, err
	}
	if out.PredBoxes, err = layerOf(outCoord, layers-1); err != nil {
		return nil, err
	}
	if n.Detector.AuxLoss() {
		if out.AuxOutputs, err = auxOutputs(outClass, outCoord); err != nil {
			return nil, err
		}
	}

	// The model feature set is batch-independent; encode and decode once,
	// then broadcast the embeddings across the batch.
	feat3d, err := n.Model3D.ForwardEncoder()
	if err != nil {
		return nil, errors.Wrap(err, "pose: 3d model encoder")
	}
	if feat3d.Dims() != 2 || feat3d.Shape()[1] != n.Detector.HiddenDim() {
		return nil, errors.Errorf("pose: model features %v do not match hidden dim %d", feat3d.Shape(), n.Detector.HiddenDim())
	}
	if out.PredModelPoints, out.PredModelScales, out.PredModelCenters, err = n.Model3D.ForwardDecoder(feat3d); err != nil {
		return nil, errors.Wrap(err, "pose: 3d model decoder")
	}

	bs := samples.Tensors.Shape()[0]
	feat3dBatch, err := broadcast(feat3d, bs)
	if err != nil {
		return nil, err
	}

	lastHs, err := layerOf(hs, layers-1)
	if err != nil {
		return nil, err
	}

	attention, err := n.Attention.Forward(lastHs, feat3dBatch, n.training)
	if err != nil {
		return nil, err
	}

	if out.PoseClass, out.Pose6DoF, err = n.Head.Forward(feat3dBatch, attention); err != nil {
		return nil, err
	}

	return out, nil
}

// layerOf slices layer i off the leading per-decoder-layer axis and returns
// it as a standalone tensor.
func layerOf(t *tensor.Dense, i int) (*tensor.Dense, error) {
	view, err := t.Slice(tensor.S(i))
	if err != nil {
		return nil, errors.Wrapf(err, "pose: slice layer %d", i)
	}
	dense, ok := view.(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("pose: layer %d slice is not dense", i)
	}
	return dense.Materialize().(*tensor.Dense), nil
}

// auxOutputs packages the per-intermediate-layer detection outputs, one
// entry per decoder layer except the last.
func auxOutputs(outClass, outCoord *tensor.Dense) ([]AuxOutput, error) {
	layers := outClass.Shape()[0]
	aux := make([]AuxOutput, 0, layers-1)
	for i := 0; i < layers-1; i++ {
		logits, err := layerOf(outClass, i)
		if err != nil {
			return nil, err
		}
		boxes, err := layerOf(outCoord, i)
		if err != nil {
			return nil, err
		}
		aux = append(aux, AuxOutput{PredLogits: logits, PredBoxes: boxes})
	}
	return aux, nil
}

// broadcast replicates a batch-independent (M, C) feature set into
// (b, M, C). Tiling a single copy this way is numerically identical to
// computing with the batch dimension from the start.
func broadcast(feat *tensor.Dense, b int) (*tensor.Dense, error) {
	shape := feat.Shape()
	tiled := feat.Clone().(*tensor.Dense)
	if err := tiled.Reshape(1, shape[0], shape[1]); err != nil {
		return nil, errors.Wrap(err, "pose: broadcast model features")
	}
	rep, err := tiled.Repeat(0, b)
	if err != nil {
		return nil, errors.Wrap(err, "pose: broadcast model features")
	}
	return rep.(*tensor.Dense), nil
}
