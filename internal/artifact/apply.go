// Package artifact holds the versioned work product and the pure
// applicator that transforms it under mutation directives.
package artifact

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"evoloop/internal/mutation"
)

// #region new

// New constructs a version-1 artifact with a fresh id.
func New(body string, metrics map[string]float64) Artifact {
	m := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		m[k] = v
	}
	return Artifact{
		ID:        uuid.New().String(),
		Version:   1,
		Body:      body,
		Metrics:   m,
		CreatedAt: time.Now().UTC(),
	}
}

// #endregion new

// #region apply

// Apply runs directives against the artifact in list order and returns a
// new version. The input is never mutated; body and metrics are
// deterministic for a fixed (artifact, directives) pair. An unknown
// directive kind aborts with ErrUnknownKind and no result.
func Apply(a Artifact, directives []mutation.Directive) (Artifact, error) {
	for i, d := range directives {
		if !d.Kind.Known() {
			return Artifact{}, fmt.Errorf("%w: %q (directive %d)", ErrUnknownKind, d.Kind, i)
		}
	}

	next := a.Clone()
	for _, d := range directives {
		switch d.Kind {
		case mutation.KindRewrite:
			if d.Target != "" {
				next.Body = strings.ReplaceAll(next.Body, d.Target, d.Note)
			}
		case mutation.KindTune:
			delta := d.Intensity
			if d.Inverse {
				delta = -delta
			}
			next.Metrics[d.Target] += delta
		case mutation.KindAnnotate:
			next.Body += "\n// " + d.Note
		}
	}
	next.Version = a.Version + 1
	next.ID = uuid.New().String()
	next.CreatedAt = time.Now().UTC()
	return next, nil
}

// #endregion apply
