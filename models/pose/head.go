// Package pose - Joint 2D detection and 3D pose estimation network core.
//
// The package composes three pieces: an attention map between detection
// queries and a learned set of 3D model embeddings (nn.AttentionMap), a
// prediction head turning model features plus attention weights into a model
// classification and a 6DoF pose per (query, model) pair (Head), and the
// orchestrating network (Net) that drives an external detector and an
// external 3D model feature network through one forward pass.
package pose

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-pose/nn"
)

// headStages is the depth of the two halving linear+ReLU stacks.
const headStages = 4

// normGroups is the group count of the feature refinement normalization.
const normGroups = 8

// Head predicts, for every detection query, a classification distribution
// over the M known 3D models and a 6DoF pose per (query, model) pair.
//
// Input is the pooled model feature set (B, M, numDims) and the attention
// weights (B, Q, heads, M); output is the class distribution (B, Q, M),
// summing to 1 over M, and the unconstrained pose tensor (B, Q, M, 6).
type Head struct {
	NumDims  int
	NumHeads int

	// L1 and G1 refine the model features before fusion.
	L1 *nn.Linear
	G1 *nn.GroupNorm

	// ClassStack/ClassOut and PoseStack/PoseOut are independently weighted
	// halving stacks over the fused (numDims+numHeads)-wide features.
	ClassStack []*nn.Linear
	ClassOut   *nn.Linear
	PoseStack  []*nn.Linear
	PoseOut    *nn.Linear
}

// NewHead creates a prediction head for model features of width numDims and
// attention maps with numHeads heads. Every linear layer is initialized with
// ReLU-gain Xavier-normal weights and zero biases.
func NewHead(numDims, numHeads int) (*Head, error) {
	g1, err := nn.NewGroupNorm("pose_head.g1", normGroups, numDims)
	if err != nil {
		return nil, err
	}

	h := &Head{
		NumDims:  numDims,
		NumHeads: numHeads,
		L1:       nn.NewLinearReLU("pose_head.l1", numDims, numDims),
		G1:       g1,
	}

	width := numDims + numHeads
	for i := 0; i < headStages; i++ {
		next := width / 2
		h.ClassStack = append(h.ClassStack, nn.NewLinearReLU("pose_head.class", width, next))
		h.PoseStack = append(h.PoseStack, nn.NewLinearReLU("pose_head.pose", width, next))
		width = next
	}
	h.ClassOut = nn.NewLinearReLU("pose_head.class_out", width, 1)
	h.PoseOut = nn.NewLinearReLU("pose_head.pose_out", width, 6)
	return h, nil
}

// Params returns every parameter of both branches.
func (h *Head) Params() []*nn.Param {
	params := append(h.L1.Params(), h.G1.Params()...)
	for _, l := range h.ClassStack {
		params = append(params, l.Params()...)
	}
	params = append(params, h.ClassOut.Params()...)
	for _, l := range h.PoseStack {
		params = append(params, l.Params()...)
	}
	return append(params, h.PoseOut.Params()...)
}

// Forward runs the head on model features (B, M, numDims) and attention
// weights (B, Q, heads, M), returning the class distribution (B, Q, M) and
// the pose tensor (B, Q, M, 6).
func (h *Head) Forward(feat, attention *tensor.Dense) (*tensor.Dense, *tensor.Dense, error) {
	fs, as := feat.Shape(), attention.Shape()
	if len(fs) != 3 || fs[2] != h.NumDims {
		return nil, nil, errors.Errorf("pose head: want model features (B, M, %d), got %v", h.NumDims, fs)
	}
	if len(as) != 4 || as[2] != h.NumHeads {
		return nil, nil, errors.Errorf("pose head: want attention (B, Q, %d, M), got %v", h.NumHeads, as)
	}
	if as[0] != fs[0] || as[3] != fs[1] {
		return nil, nil, errors.Errorf("pose head: attention %v does not match model features %v", as, fs)
	}

	refined, err := h.L1.Forward(feat)
	if err != nil {
		return nil, nil, err
	}
	if refined, err = h.G1.Forward(refined); err != nil {
		return nil, nil, err
	}
	if refined, err = nn.ReLU(refined); err != nil {
		return nil, nil, err
	}

	fused := h.fuse(refined, attention)

	class := fused
	for _, l := range h.ClassStack {
		if class, err = l.Forward(class); err != nil {
			return nil, nil, err
		}
		if class, err = nn.ReLU(class); err != nil {
			return nil, nil, err
		}
	}
	if class, err = h.ClassOut.Forward(class); err != nil {
		return nil, nil, err
	}
	if err = class.Reshape(as[0], as[1], fs[1]); err != nil {
		return nil, nil, errors.Wrap(err, "pose head: squeeze class logits")
	}
	if class, err = nn.Softmax(class, 2); err != nil {
		return nil, nil, err
	}

	pose := fused
	for _, l := range h.PoseStack {
		if pose, err = l.Forward(pose); err != nil {
			return nil, nil, err
		}
		if pose, err = nn.ReLU(pose); err != nil {
			return nil, nil, err
		}
	}
	if pose, err = h.PoseOut.Forward(pose); err != nil {
		return nil, nil, err
	}

	return class, pose, nil
}

// fuse replicates the refined model features across the query axis and
// concatenates the per-head attention weights, producing a
// (B, Q, M, numDims+numHeads) tensor where row (b, q, m) holds the m-th
// model's features followed by that (query, model) pair's head weights.
func (h *Head) fuse(refined, attention *tensor.Dense) *tensor.Dense {
	as := attention.Shape()
	b, nq, heads, nm := as[0], as[1], as[2], as[3]
	dims := h.NumDims
	width := dims + heads

	rd := refined.Float32s()
	ad := attention.Float32s()
	fused := make([]float32, b*nq*nm*width)
	for bi := 0; bi < b; bi++ {
		for qi := 0; qi < nq; qi++ {
			for mi := 0; mi < nm; mi++ {
				row := (((bi*nq)+qi)*nm + mi) * width
				copy(fused[row:row+dims], rd[(bi*nm+mi)*dims:(bi*nm+mi+1)*dims])
				for hi := 0; hi < heads; hi++ {
					fused[row+dims+hi] = ad[(((bi*nq+qi)*heads)+hi)*nm+mi]
				}
			}
		}
	}
	return tensor.New(tensor.WithShape(b, nq, nm, width), tensor.WithBacking(fused))
}
