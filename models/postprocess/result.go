// Package postprocess - Decoding of raw joint-network outputs into per-image
// detection results for evaluation and display.
package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pose/common"
	"github.com/nvr-ai/go-pose/models/pose"
	"github.com/nvr-ai/go-pose/nn"
)

// Detection is one decoded detection: its box in image pixels, the detection
// class, and the best-matching 3D model with its 6DoF pose.
type Detection struct {
	Box   common.BoundingBox `json:"box"`
	Score float32            `json:"score"`
	Class int                `json:"class"`

	// Model is the argmax 3D model index for this query, ModelScore its
	// probability, and Pose the 6DoF estimate predicted for that pair.
	Model      int        `json:"model"`
	ModelScore float32    `json:"model_score"`
	Pose       [6]float32 `json:"pose"`
}

// Decode turns an Output record into per-image detections. sizes holds one
// (width, height) pair per image; queries whose best non-background class
// probability falls below scoreThreshold are dropped. The final logit column
// is treated as the background class.
func Decode(out *pose.Output, sizes [][2]int, scoreThreshold float32) ([][]Detection, error) {
	ls := out.PredLogits.Shape()
	if len(ls) != 3 {
		return nil, errors.Errorf("postprocess: want logits (B, Q, K), got %v", ls)
	}
	b, q, k := ls[0], ls[1], ls[2]
	if len(sizes) != b {
		return nil, errors.Errorf("postprocess: %d image sizes for batch of %d", len(sizes), b)
	}
	if k < 2 {
		return nil, errors.Errorf("postprocess: need at least one foreground class, got %d columns", k)
	}

	probs, err := nn.Softmax(out.PredLogits, 2)
	if err != nil {
		return nil, err
	}

	ps := out.PoseClass.Shape()
	m := ps[2]
	pd := probs.Float32s()
	boxes := out.PredBoxes.Float32s()
	poseClass := out.PoseClass.Float32s()
	pose6 := out.Pose6DoF.Float32s()

	results := make([][]Detection, b)
	for bi := 0; bi < b; bi++ {
		for qi := 0; qi < q; qi++ {
			row := (bi*q + qi) * k
			cls, score := 0, pd[row]
			for c := 1; c < k-1; c++ {
				if pd[row+c] > score {
					cls, score = c, pd[row+c]
				}
			}
			if score < scoreThreshold {
				continue
			}

			crow := (bi*q + qi) * m
			model, modelScore := 0, poseClass[crow]
			for mi := 1; mi < m; mi++ {
				if poseClass[crow+mi] > modelScore {
					model, modelScore = mi, poseClass[crow+mi]
				}
			}

			brow := (bi*q + qi) * 4
			box := common.FromCxCyWH(boxes[brow], boxes[brow+1], boxes[brow+2], boxes[brow+3], sizes[bi][0], sizes[bi][1])
			box.Label = cls
			box.Confidence = score

			det := Detection{
				Box:        box,
				Score:      score,
				Class:      cls,
				Model:      model,
				ModelScore: modelScore,
			}
			copy(det.Pose[:], pose6[(crow+model)*6:(crow+model)*6+6])
			results[bi] = append(results[bi], det)
		}
	}
	return results, nil
}
