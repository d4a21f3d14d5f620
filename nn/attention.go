package nn

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// AttentionMap computes multi-head attention weight distributions between a
// query set and a key set without applying them to values: the softmaxed
// score tensor is the output. Queries of shape (B, Q, queryDim) against keys
// of shape (B, M, queryDim) yield weights of shape (B, Q, heads, M) where
// the M axis of every (batch, query, head) row sums to 1.
type AttentionMap struct {
	NumHeads  int
	HiddenDim int

	QLinear *Linear
	KLinear *Linear
	Drop    *Dropout

	scale float32
}

// NewAttentionMap creates an attention map module. Projections are
// Xavier-uniform with zero biases; dropout applies to the output weights in
// training mode only.
func NewAttentionMap(queryDim, hiddenDim, numHeads int, dropout float64) (*AttentionMap, error) {
	if numHeads <= 0 || hiddenDim%numHeads != 0 {
		return nil, errors.Errorf("attention: hidden dim %d not divisible by %d heads", hiddenDim, numHeads)
	}
	drop, err := NewDropout(dropout, 0)
	if err != nil {
		return nil, err
	}
	return &AttentionMap{
		NumHeads:  numHeads,
		HiddenDim: hiddenDim,
		QLinear:   NewLinear("q_linear", queryDim, hiddenDim),
		KLinear:   NewLinear("k_linear", queryDim, hiddenDim),
		Drop:      drop,
		scale:     1 / math32.Sqrt(float32(hiddenDim/numHeads)),
	}, nil
}

// Params returns the projection parameters.
func (m *AttentionMap) Params() []*Param {
	return append(m.QLinear.Params(), m.KLinear.Params()...)
}

// Forward computes the attention weights for query (B, Q, queryDim) and key
// (B, M, queryDim). Softmax runs strictly over the key axis, so the weights
// of one query row never mix with another's.
func (m *AttentionMap) Forward(query, key *tensor.Dense, training bool) (*tensor.Dense, error) {
	qs, ks := query.Shape(), key.Shape()
	if len(qs) != 3 || len(ks) != 3 {
		return nil, errors.Errorf("attention: want 3D query and key, got %v and %v", qs, ks)
	}
	if qs[0] != ks[0] {
		return nil, errors.Errorf("attention: batch size mismatch between query %v and key %v", qs, ks)
	}
	if qs[2] != ks[2] {
		return nil, errors.Errorf("attention: feature width mismatch between query %v and key %v", qs, ks)
	}

	qp, err := m.QLinear.Forward(query)
	if err != nil {
		return nil, err
	}
	kp, err := m.KLinear.Forward(key)
	if err != nil {
		return nil, err
	}

	b, nq, nm := qs[0], qs[1], ks[1]
	heads := m.NumHeads
	headDim := m.HiddenDim / heads

	// Per-head scaled dot product. The projected tensors are contiguous
	// (B, ·, heads*headDim), so head h of row r starts at r*hidden + h*headDim.
	qd := qp.Float32s()
	kd := kp.Float32s()
	scores := make([]float32, b*nq*heads*nm)
	for bi := 0; bi < b; bi++ {
		for qi := 0; qi < nq; qi++ {
			qrow := (bi*nq + qi) * m.HiddenDim
			for h := 0; h < heads; h++ {
				qoff := qrow + h*headDim
				srow := ((bi*nq+qi)*heads + h) * nm
				for mi := 0; mi < nm; mi++ {
					koff := (bi*nm+mi)*m.HiddenDim + h*headDim
					var dot float32
					for d := 0; d < headDim; d++ {
						dot += qd[qoff+d] * kd[koff+d]
					}
					scores[srow+mi] = dot * m.scale
				}
			}
		}
	}

	weights := tensor.New(tensor.WithShape(b, nq, heads, nm), tensor.WithBacking(scores))
	weights, err = Softmax(weights, 3)
	if err != nil {
		return nil, err
	}
	return m.Drop.Forward(weights, training), nil
}
