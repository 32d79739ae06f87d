package detect

// #region report
// Report summarizes the change between two consecutive state vectors.
type Report struct {
	// Delta holds per-field absolute deltas, Signed the directional deltas.
	Delta  map[string]float64
	Signed map[string]float64

	// Fields preserves schema declaration order for deterministic iteration.
	Fields []string

	// Aggregate is the sum of absolute deltas across all fields.
	Aggregate float64

	// Significant is true when Aggregate exceeds the global threshold.
	// It is a pure function of the two inputs and the threshold.
	Significant bool

	// ColdStart marks a first observation with no prior vector.
	ColdStart bool
}

// #endregion report
