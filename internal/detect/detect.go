// Package detect compares consecutive state vectors and flags significant
// change. Detection is deterministic and side-effect free; the aggregate
// threshold decides "worth looking at", per-field thresholds downstream
// decide "actionable".
package detect

import (
	"fmt"
	"math"

	"evoloop/internal/statevec"
)

// #region detect

// Detect computes the per-field delta report between previous and current.
// A nil previous vector is a cold start: the report carries zero deltas and
// is never significant, so a fresh profile cannot trigger mutation.
func Detect(previous *statevec.Vector, current statevec.Vector, globalThreshold float64) Report {
	fields := current.Fields()
	rep := Report{
		Delta:  make(map[string]float64, len(fields)),
		Signed: make(map[string]float64, len(fields)),
		Fields: fields,
	}

	if previous == nil || previous.IsZero() {
		rep.ColdStart = true
		for _, f := range fields {
			rep.Delta[f] = 0
			rep.Signed[f] = 0
		}
		return rep
	}

	for _, f := range fields {
		cur, _ := current.Get(f)
		prev, ok := previous.Get(f)
		if !ok {
			// Field added between schema revisions: treat the prior value
			// as equal to current so the revision itself is not a delta.
			prev = cur
		}
		signed := cur - prev
		rep.Signed[f] = signed
		rep.Delta[f] = math.Abs(signed)
		rep.Aggregate += math.Abs(signed)
	}

	rep.Significant = rep.Aggregate > globalThreshold
	return rep
}

// #endregion detect

// #region detect-checked

// DetectChecked is Detect with a schema-version guard. Mixing vectors built
// against different schema versions is a caller contract violation.
func DetectChecked(previous *statevec.Vector, current statevec.Vector, globalThreshold float64) (Report, error) {
	if previous != nil && !previous.IsZero() && previous.SchemaVersion() != current.SchemaVersion() {
		return Report{}, fmt.Errorf("%w: schema version mismatch %d vs %d",
			statevec.ErrInvalidInput, previous.SchemaVersion(), current.SchemaVersion())
	}
	return Detect(previous, current, globalThreshold), nil
}

// #endregion detect-checked
