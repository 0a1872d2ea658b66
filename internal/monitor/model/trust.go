package model

// Dimension names one scored facet of session integrity.
type Dimension string

const (
	BehaviorStability       Dimension = "behavior_stability"
	TypingConsistency       Dimension = "typing_consistency"
	CodingAuthenticity      Dimension = "coding_authenticity"
	IdentityStability       Dimension = "identity_stability"
	EnvironmentIntegrity    Dimension = "environment_integrity"
	InterventionPerformance Dimension = "intervention_performance"
)

// DimensionWeights are fixed and sum to 1.0. Overall trust is always the
// weighted sum of the six dimensions, never stored independently of them.
var DimensionWeights = map[Dimension]float64{
	BehaviorStability:       0.20,
	TypingConsistency:       0.15,
	CodingAuthenticity:      0.20,
	IdentityStability:       0.20,
	EnvironmentIntegrity:    0.10,
	InterventionPerformance: 0.15,
}

// Dimensions lists the six dimensions in canonical order.
var Dimensions = []Dimension{
	BehaviorStability,
	TypingConsistency,
	CodingAuthenticity,
	IdentityStability,
	EnvironmentIntegrity,
	InterventionPerformance,
}

// KnownDimension reports whether name is one of the six dimensions.
func KnownDimension(name Dimension) bool {
	_, ok := DimensionWeights[name]
	return ok
}

// TrustDimensions holds the six per-dimension scores, each clamped [0,100].
type TrustDimensions struct {
	BehaviorStability       float64 `json:"behavior_stability"`
	TypingConsistency       float64 `json:"typing_consistency"`
	CodingAuthenticity      float64 `json:"coding_authenticity"`
	IdentityStability       float64 `json:"identity_stability"`
	EnvironmentIntegrity    float64 `json:"environment_integrity"`
	InterventionPerformance float64 `json:"intervention_performance"`
}

// PristineDimensions returns a fresh vector with every dimension at 100.
func PristineDimensions() TrustDimensions {
	return TrustDimensions{
		BehaviorStability:       100,
		TypingConsistency:       100,
		CodingAuthenticity:      100,
		IdentityStability:       100,
		EnvironmentIntegrity:    100,
		InterventionPerformance: 100,
	}
}

// Get returns the score for one dimension.
func (d TrustDimensions) Get(dim Dimension) float64 {
	switch dim {
	case BehaviorStability:
		return d.BehaviorStability
	case TypingConsistency:
		return d.TypingConsistency
	case CodingAuthenticity:
		return d.CodingAuthenticity
	case IdentityStability:
		return d.IdentityStability
	case EnvironmentIntegrity:
		return d.EnvironmentIntegrity
	case InterventionPerformance:
		return d.InterventionPerformance
	}
	return 0
}

// Set stores a score for one dimension, clamped to [0,100].
func (d *TrustDimensions) Set(dim Dimension, value float64) {
	value = Clamp(value)
	switch dim {
	case BehaviorStability:
		d.BehaviorStability = value
	case TypingConsistency:
		d.TypingConsistency = value
	case CodingAuthenticity:
		d.CodingAuthenticity = value
	case IdentityStability:
		d.IdentityStability = value
	case EnvironmentIntegrity:
		d.EnvironmentIntegrity = value
	case InterventionPerformance:
		d.InterventionPerformance = value
	}
}

// Overall recomputes the weighted composite from scratch.
func (d TrustDimensions) Overall() float64 {
	total := 0.0
	for dim, weight := range DimensionWeights {
		total += d.Get(dim) * weight
	}
	return total
}

// Clamp bounds a score to the legal [0,100] range.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
