// Package fitness scores artifact versions against a target state vector.
package fitness

import (
	"math"

	"evoloop/internal/artifact"
	"evoloop/internal/statevec"
)

// #region evaluator

// Evaluator computes weighted similarity scores. Construct via NewEvaluator.
type Evaluator struct {
	weights map[string]float64
	order   []string
}

// NewEvaluator validates the weight table and returns an Evaluator.
// Weights must be non-negative and sum to 1 within 1e-9.
func NewEvaluator(weights map[string]float64) (*Evaluator, error) {
	if len(weights) == 0 {
		return nil, ErrBadWeights
	}
	var sum float64
	order := make([]string, 0, len(weights))
	for f, w := range weights {
		if w < 0 {
			return nil, ErrBadWeights
		}
		sum += w
		order = append(order, f)
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, ErrBadWeights
	}
	copied := make(map[string]float64, len(weights))
	for f, w := range weights {
		copied[f] = w
	}
	return &Evaluator{weights: copied, order: order}, nil
}

// #endregion evaluator

// #region evaluate

// Evaluate scores the artifact against the target vector. Side-effect free;
// the caller records the result in profile history. Each component is
// 1 - min(|measured-target| / |target|, 1); a zero target scores 1 when the
// measurement is also zero and 0 otherwise. Artifact metrics missing a
// weighted field measure as 0.
func (e *Evaluator) Evaluate(a artifact.Artifact, target statevec.Vector) Score {
	components := make(map[string]float64, len(e.weights))
	var overall float64

	for _, f := range target.Fields() {
		w, weighted := e.weights[f]
		if !weighted {
			continue
		}
		tgt, _ := target.Get(f)
		measured := a.Metrics[f]
		components[f] = similarity(measured, tgt)
		overall += w * components[f]
	}
	// Weighted fields the target schema does not carry score 0.
	for f := range e.weights {
		if _, ok := components[f]; !ok {
			components[f] = 0
		}
	}

	return Score{Overall: clamp01(overall), Components: components}
}

// #endregion evaluate

// #region helpers

func similarity(measured, target float64) float64 {
	if target == 0 {
		if measured == 0 {
			return 1
		}
		return 0
	}
	return 1 - math.Min(math.Abs(measured-target)/math.Abs(target), 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
