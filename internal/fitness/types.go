package fitness

import "errors"

// #region errors
// ErrBadWeights indicates a weight table that is negative or does not sum
// to 1. Weights are validated at construction time, never per evaluation.
var ErrBadWeights = errors.New("fitness: weights must be non-negative and sum to 1")

// #endregion errors

// #region score
// Score measures how closely an artifact's derived metrics align with a
// target state vector. It is reported, never used to gate acceptance.
type Score struct {
	Overall    float64            `json:"overall"` // in [0, 1]
	Components map[string]float64 `json:"components"`
}

// #endregion score
