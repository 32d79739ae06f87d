package artifact

import (
	"errors"
	"time"
)

// #region errors
// ErrUnknownKind indicates a directive kind the applicator has no handler
// for. This is a programming error in the rule set, so it fails fast.
var ErrUnknownKind = errors.New("artifact: unknown directive kind")

// #endregion errors

// #region artifact
// Artifact is one version of the owned work product a profile evolves.
// Values are copied on apply; no version is ever mutated in place, so the
// original remains available for audit.
type Artifact struct {
	ID        string             `json:"id"`
	Version   int                `json:"version"`
	Body      string             `json:"body"`
	Metrics   map[string]float64 `json:"metrics"`
	CreatedAt time.Time          `json:"created_at"`
}

// Clone returns a deep copy of the artifact.
func (a Artifact) Clone() Artifact {
	out := a
	out.Metrics = make(map[string]float64, len(a.Metrics))
	for k, v := range a.Metrics {
		out.Metrics[k] = v
	}
	return out
}

// #endregion artifact
