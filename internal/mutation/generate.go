// Package mutation maps change reports to ordered transformation directives.
// The generator works on per-field thresholds only: a report can be
// significant in aggregate and still produce no directives.
package mutation

import (
	"fmt"

	"evoloop/internal/detect"
)

// #region validate

// Validate checks a rule set at configuration time. Bad rule sets are a
// startup failure, never a per-tick one.
func (rs RuleSet) Validate() error {
	seen := make(map[string]struct{}, len(rs))
	for i, r := range rs {
		if r.Field == "" {
			return fmt.Errorf("%w: rule %d has empty field", ErrInvalidRule, i)
		}
		if _, dup := seen[r.Field]; dup {
			return fmt.Errorf("%w: duplicate rule for field %q", ErrInvalidRule, r.Field)
		}
		seen[r.Field] = struct{}{}
		if r.Threshold < 0 {
			return fmt.Errorf("%w: rule %q has negative threshold", ErrInvalidRule, r.Field)
		}
		if !r.Kind.Known() {
			return fmt.Errorf("%w: rule %q has unknown kind %q", ErrInvalidRule, r.Field, r.Kind)
		}
	}
	return nil
}

// #endregion validate

// #region generate

// Generate emits one directive per rule whose field delta exceeds that
// rule's individual threshold, in rule declaration order. Fields present
// in the report but absent from the rule set are silently ignored.
func Generate(report detect.Report, rules RuleSet) []Directive {
	var out []Directive
	for _, r := range rules {
		delta, ok := report.Delta[r.Field]
		if !ok {
			continue
		}
		if delta <= r.Threshold {
			continue
		}
		out = append(out, Directive{
			Kind:      r.Kind,
			Intensity: delta,
			Target:    r.Target,
			Note:      r.Note,
			Inverse:   report.Signed[r.Field] < 0,
		})
	}
	return out
}

// #endregion generate
