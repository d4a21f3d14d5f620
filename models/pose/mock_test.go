package pose

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-pose/batch"
	"github.com/nvr-ai/go-pose/nn"
)

// stubDetector is a deterministic stand-in for the external detection
// network. Its transformer output depends on the learned query embeddings,
// the decoder layer index and the per-image mean of the projected features,
// so identical images produce identical query states while different images
// diverge.
type stubDetector struct {
	hidden     int
	heads      int
	layers     int
	queries    int
	numClasses int
	aux        bool

	queryEmbed *nn.Param
	classEmbed *nn.Linear
	bboxEmbed  *nn.Linear
}

func newStubDetector(hidden, heads, layers, queries, numClasses int, aux bool) *stubDetector {
	qe := make([]float32, queries*hidden)
	for i := range qe {
		qe[i] = math32.Sin(float32(i)*0.11) * 0.5
	}
	return &stubDetector{
		hidden:     hidden,
		heads:      heads,
		layers:     layers,
		queries:    queries,
		numClasses: numClasses,
		aux:        aux,
		queryEmbed: nn.NewParam("query_embed.weight", tensor.New(tensor.WithShape(queries, hidden), tensor.WithBacking(qe))),
		classEmbed: nn.NewLinear("class_embed", hidden, numClasses),
		bboxEmbed:  nn.NewLinear("bbox_embed", hidden, 4),
	}
}

func (d *stubDetector) Backbone(in *batch.NestedTensor) ([]*batch.NestedTensor, []*tensor.Dense, error) {
	shape := in.Tensors.Shape()
	b := shape[0]
	pixels := in.Tensors.Float32s()
	perImage := len(pixels) / b

	const fh, fw = 2, 2
	feat := make([]float32, b*d.hidden*fh*fw)
	for bi := 0; bi < b; bi++ {
		var mean float32
		for _, v := range pixels[bi*perImage : (bi+1)*perImage] {
			mean += v
		}
		mean /= float32(perImage)
		for c := 0; c < d.hidden; c++ {
			v := mean + 0.01*float32(c%7)
			for p := 0; p < fh*fw; p++ {
				feat[(bi*d.hidden+c)*fh*fw+p] = v
			}
		}
	}

	fm := &batch.NestedTensor{
		Tensors: tensor.New(tensor.WithShape(b, d.hidden, fh, fw), tensor.WithBacking(feat)),
		Mask:    tensor.New(tensor.WithShape(b, fh, fw), tensor.WithBacking(make([]bool, b*fh*fw))),
	}
	pos := tensor.New(tensor.WithShape(b, d.hidden, fh, fw), tensor.WithBacking(make([]float32, b*d.hidden*fh*fw)))
	return []*batch.NestedTensor{fm}, []*tensor.Dense{pos}, nil
}

func (d *stubDetector) InputProj(src *tensor.Dense) (*tensor.Dense, error) {
	return src, nil
}

func (d *stubDetector) Transformer(src, mask, queryEmbed, pos *tensor.Dense) (*tensor.Dense, *tensor.Dense, error) {
	if mask == nil {
		return nil, nil, errors.New("stub transformer: nil mask")
	}
	b := src.Shape()[0]
	perImage := len(src.Float32s()) / b

	srcMean := make([]float32, b)
	for bi := 0; bi < b; bi++ {
		var sum float32
		for _, v := range src.Float32s()[bi*perImage : (bi+1)*perImage] {
			sum += v
		}
		srcMean[bi] = sum / float32(perImage)
	}

	qe := queryEmbed.Float32s()
	hs := make([]float32, d.layers*b*d.queries*d.hidden)
	for l := 0; l < d.layers; l++ {
		gain := 1 + 0.05*float32(l)
		for bi := 0; bi < b; bi++ {
			for q := 0; q < d.queries; q++ {
				row := ((l*b+bi)*d.queries + q) * d.hidden
				for c := 0; c < d.hidden; c++ {
					hs[row+c] = qe[q*d.hidden+c]*gain + srcMean[bi]
				}
			}
		}
	}
	states := tensor.New(tensor.WithShape(d.layers, b, d.queries, d.hidden), tensor.WithBacking(hs))
	return states, src, nil
}

func (d *stubDetector) ClassEmbed(hs *tensor.Dense) (*tensor.Dense, error) {
	return d.classEmbed.Forward(hs)
}

func (d *stubDetector) BBoxEmbed(hs *tensor.Dense) (*tensor.Dense, error) {
	return d.bboxEmbed.Forward(hs)
}

func (d *stubDetector) QueryEmbed() *tensor.Dense { return d.queryEmbed.Value }
func (d *stubDetector) AuxLoss() bool             { return d.aux }
func (d *stubDetector) HiddenDim() int            { return d.hidden }
func (d *stubDetector) NumHeads() int             { return d.heads }

func (d *stubDetector) Params() []*nn.Param {
	params := []*nn.Param{d.queryEmbed}
	params = append(params, d.classEmbed.Params()...)
	return append(params, d.bboxEmbed.Params()...)
}

// stubModel3D is a deterministic stand-in for the external 3D model feature
// network.
type stubModel3D struct {
	models int
	dims   int
	points int
}

func (m *stubModel3D) ForwardEncoder() (*tensor.Dense, error) {
	feat := make([]float32, m.models*m.dims)
	for i := range feat {
		feat[i] = math32.Cos(float32(i) * 0.03)
	}
	return tensor.New(tensor.WithShape(m.models, m.dims), tensor.WithBacking(feat)), nil
}

func (m *stubModel3D) ForwardDecoder(feat *tensor.Dense) (*tensor.Dense, *tensor.Dense, *tensor.Dense, error) {
	points := make([]float32, m.models*m.points*3)
	for i := range points {
		points[i] = 0.1 * float32(i%13)
	}
	scales := make([]float32, m.models)
	centers := make([]float32, m.models*3)
	for i := 0; i < m.models; i++ {
		scales[i] = 1 + 0.01*float32(i)
	}
	return tensor.New(tensor.WithShape(m.models, m.points, 3), tensor.WithBacking(points)),
		tensor.New(tensor.WithShape(m.models, 1), tensor.WithBacking(scales)),
		tensor.New(tensor.WithShape(m.models, 3), tensor.WithBacking(centers)),
		nil
}
