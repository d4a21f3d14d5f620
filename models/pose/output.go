package pose

import "gorgonia.org/tensor"

// Output is the result record of one forward pass. Field names and shapes
// are the contract with loss and metric code; B is the batch size, Q the
// query count, M the 3D model count and K the detection class count.
type Output struct {
	// PredLogits holds the detection class logits, shape (B, Q, K).
	PredLogits *tensor.Dense `json:"pred_logits"`

	// PredBoxes holds normalized (cx, cy, w, h) boxes in [0, 1], shape (B, Q, 4).
	PredBoxes *tensor.Dense `json:"pred_boxes"`

	// AuxOutputs holds one entry per intermediate decoder layer when the
	// detector runs with auxiliary losses enabled, nil otherwise.
	AuxOutputs []AuxOutput `json:"aux_outputs,omitempty"`

	// PoseClass is the per-query distribution over the M known 3D models,
	// shape (B, Q, M), summing to 1 over M.
	PoseClass *tensor.Dense `json:"pose_class"`

	// Pose6DoF is the unconstrained pose estimate per (query, model) pair,
	// shape (B, Q, M, 6); interpretation of the six values is left to the
	// consuming loss and metric code.
	Pose6DoF *tensor.Dense `json:"pose_6dof"`

	// PredModelPoints, PredModelScales and PredModelCenters are the 3D model
	// network's own reconstruction of its point clouds, passed through
	// unchanged for the reconstruction loss.
	PredModelPoints  *tensor.Dense `json:"pred_model_points"`
	PredModelScales  *tensor.Dense `json:"pred_model_scales"`
	PredModelCenters *tensor.Dense `json:"pred_model_centers"`
}

// AuxOutput mirrors the final-layer detection outputs for one intermediate
// decoder layer.
type AuxOutput struct {
	PredLogits *tensor.Dense `json:"pred_logits"`
	PredBoxes  *tensor.Dense `json:"pred_boxes"`
}
