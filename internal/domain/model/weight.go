package model

import (
	"math"
	"time"
)

// Weight bounds shared by the scorer and the learner.
const (
	MinWeight = 0.1
	MaxWeight = 2.0
)

// FactorWeight is the learned weight of one scoring factor.
type FactorWeight struct {
	Factor             string    `json:"factor"`
	CurrentWeight      float64   `json:"current_weight"`
	BaselineWeight     float64   `json:"baseline_weight"`
	SuccessCorrelation float64   `json:"success_correlation"`
	ConfidenceScore    float64   `json:"confidence_score"`
	SampleSize         int       `json:"sample_size"`
	LearningIterations int       `json:"learning_iterations"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Bounds returns the allowed [min,max] for CurrentWeight given maxChange.
func (w FactorWeight) Bounds(maxChange float64) (lo, hi float64) {
	lo = math.Max(MinWeight, w.BaselineWeight*(1-maxChange))
	hi = math.Min(MaxWeight, w.BaselineWeight*(1+maxChange))
	return lo, hi
}

// WithinBounds reports whether CurrentWeight satisfies the weight invariant.
func (w FactorWeight) WithinBounds(maxChange float64) bool {
	lo, hi := w.Bounds(maxChange)
	const eps = 1e-9
	return w.CurrentWeight >= lo-eps && w.CurrentWeight <= hi+eps
}

// WeightSet indexes weights by factor name.
type WeightSet map[string]FactorWeight

// NewWeightSet indexes ws.
func NewWeightSet(ws []FactorWeight) WeightSet {
	set := make(WeightSet, len(ws))
	for _, w := range ws {
		set[w.Factor] = w
	}
	return set
}

// Version is the latest UpdatedAt across all weights, used to tag cached rankings.
func (s WeightSet) Version() time.Time {
	var v time.Time
	for _, w := range s {
		if w.UpdatedAt.After(v) {
			v = w.UpdatedAt
		}
	}
	return v
}
