package mutation

import "errors"

// #region errors
// ErrInvalidRule indicates a malformed rule set at configuration time.
var ErrInvalidRule = errors.New("mutation: invalid rule")

// #endregion errors

// #region kind
// Kind tags how a directive transforms an artifact.
type Kind string

const (
	// KindRewrite substitutes every occurrence of the target pattern in the
	// artifact body with the directive note.
	KindRewrite Kind = "rewrite"
	// KindTune nudges the named artifact metric by the directive intensity.
	KindTune Kind = "tune"
	// KindAnnotate appends the note as a provenance line to the body.
	KindAnnotate Kind = "annotate"
)

// Known reports whether k is a declared directive kind.
func (k Kind) Known() bool {
	switch k {
	case KindRewrite, KindTune, KindAnnotate:
		return true
	}
	return false
}

// #endregion kind

// #region directive
// Directive is a single instruction to transform an artifact.
type Directive struct {
	Kind      Kind    `json:"kind"`
	Intensity float64 `json:"intensity"` // always >= 0
	Target    string  `json:"target"`
	Note      string  `json:"note"`
	// Inverse carries the direction of the originating signed delta:
	// true when the field moved downward.
	Inverse bool `json:"inverse"`
}

// #endregion directive

// #region rule
// Rule maps one state field to the directive emitted when that field's
// absolute delta crosses its individual threshold.
type Rule struct {
	Field     string  `json:"field"`
	Threshold float64 `json:"threshold"`
	Kind      Kind    `json:"kind"`
	Target    string  `json:"target"`
	Note      string  `json:"note"`
}

// RuleSet is an ordered list of rules; generation order is rule
// declaration order.
type RuleSet []Rule

// #endregion rule
