// Package replay runs a recorded observation sequence through the full
// evolution pipeline entirely in-memory. Used for offline rule tuning and
// regression fixtures.
package replay

import (
	"fmt"

	"evoloop/internal/artifact"
	"evoloop/internal/detect"
	"evoloop/internal/fitness"
	"evoloop/internal/mutation"
	"evoloop/internal/statevec"
)

// #region types

// ReplayConfig bundles the pipeline settings for a replay run.
type ReplayConfig struct {
	GlobalThreshold float64
	Rules           mutation.RuleSet
	Weights         map[string]float64
}

// StepResult captures the outcome of one observation through the pipeline.
type StepResult struct {
	Step      int
	Action    string // "cold_start" | "idle" | "evolved"
	Aggregate float64

	// Directives and Fitness are set only when the step evolved the artifact.
	Directives []mutation.Directive
	Fitness    *fitness.Score

	// ArtifactVersion after this step (unchanged when idle).
	ArtifactVersion int
}

// ReplaySummary aggregates a full run.
type ReplaySummary struct {
	TotalSteps    int
	ColdStarts    int
	Idles         int
	Evolutions    int
	FinalArtifact artifact.Artifact
}

// #endregion types

// #region replay

// Replay feeds each observation through detect → generate → apply → evaluate,
// advancing the artifact on every evolution. The starting artifact is never
// mutated.
func Replay(start artifact.Artifact, observations []statevec.Vector, cfg ReplayConfig) ([]StepResult, ReplaySummary, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, ReplaySummary{}, err
	}
	evaluator, err := fitness.NewEvaluator(cfg.Weights)
	if err != nil {
		return nil, ReplaySummary{}, err
	}

	current := start.Clone()
	var previous *statevec.Vector
	results := make([]StepResult, 0, len(observations))

	for i, obs := range observations {
		report := detect.Detect(previous, obs, cfg.GlobalThreshold)
		res := StepResult{
			Step:            i,
			Aggregate:       report.Aggregate,
			ArtifactVersion: current.Version,
		}

		switch {
		case report.ColdStart:
			res.Action = "cold_start"
		case !report.Significant:
			res.Action = "idle"
		default:
			directives := mutation.Generate(report, cfg.Rules)
			if len(directives) == 0 {
				res.Action = "idle"
				break
			}
			next, applyErr := artifact.Apply(current, directives)
			if applyErr != nil {
				return nil, ReplaySummary{}, fmt.Errorf("step %d: %w", i, applyErr)
			}
			score := evaluator.Evaluate(next, obs)
			current = next
			res.Action = "evolved"
			res.Directives = directives
			res.Fitness = &score
			res.ArtifactVersion = current.Version
		}

		v := obs
		previous = &v
		results = append(results, res)
	}

	return results, Summarize(results, current), nil
}

// Summarize computes aggregate stats from per-step results.
func Summarize(results []StepResult, final artifact.Artifact) ReplaySummary {
	s := ReplaySummary{
		TotalSteps:    len(results),
		FinalArtifact: final,
	}
	for _, r := range results {
		switch r.Action {
		case "cold_start":
			s.ColdStarts++
		case "idle":
			s.Idles++
		case "evolved":
			s.Evolutions++
		}
	}
	return s
}

// #endregion replay
