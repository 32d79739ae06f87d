package statevec

import "errors"

// #region errors
// ErrInvalidInput indicates a malformed vector construction or a schema
// mismatch. Callers treat it as a contract violation, not a runtime state.
var ErrInvalidInput = errors.New("statevec: invalid input")

// #endregion errors

// #region field-spec
// FieldSpec declares one named signal field and its cold-start default.
type FieldSpec struct {
	Name    string  `json:"name"`
	Default float64 `json:"default"`
}

// #endregion field-spec

// #region schema
// Schema is the versioned field layout for state vectors. Field order is
// canonical: every consumer (detector, generator, fitness) iterates fields
// in declaration order.
type Schema struct {
	Version int         `json:"version"`
	Fields  []FieldSpec `json:"fields"`
}

// #endregion schema

// #region field-thresholds
// FieldThresholds holds per-field trigger thresholds, keyed by field name.
type FieldThresholds map[string]float64
// #endregion field-thresholds
