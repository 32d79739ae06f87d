package profile

import (
	"errors"
	"time"

	"evoloop/internal/artifact"
	"evoloop/internal/detect"
	"evoloop/internal/fitness"
	"evoloop/internal/mutation"
	"evoloop/internal/statevec"
)

// #region errors
// ErrNotFound is returned when an operation references an unregistered id.
var ErrNotFound = errors.New("profile: not found")

// #endregion errors

// #region history-entry
// HistoryEntry records one completed evaluation that changed the artifact.
// Entries are immutable once appended.
type HistoryEntry struct {
	Timestamp  time.Time            `json:"timestamp"`
	Directives []mutation.Directive `json:"directives"`
	Fitness    fitness.Score        `json:"fitness"`
	Aggregate  float64              `json:"aggregate"`
	FieldDelta map[string]float64   `json:"field_delta"`
}

// #endregion history-entry

// #region profile
// Profile pairs one artifact's version history with its observed state.
// Owned exclusively by the Registry; all access goes through Registry
// methods, which hand out copies.
type Profile struct {
	ID               string
	OriginalArtifact artifact.Artifact
	CurrentArtifact  artifact.Artifact
	LastStateVector  *statevec.Vector
	PendingState     *statevec.Vector // latest pushed observation, consumed next tick
	CreatedAt        time.Time
	LastEvaluatedAt  time.Time
	History          []HistoryEntry
	EvolutionCount   int
	LastErr          string // most recent per-profile evaluation failure, "" when healthy
}

// #endregion profile

// #region evaluation
// Evaluation is the registry-mediated commit payload produced by one pass
// through the detect → generate → apply → evaluate pipeline.
type Evaluation struct {
	ConsumedState statevec.Vector
	Report        detect.Report
	Directives    []mutation.Directive
	NewArtifact   *artifact.Artifact // nil when the report did not trigger
	Fitness       *fitness.Score     // nil when the report did not trigger
	At            time.Time
}

// #endregion evaluation
