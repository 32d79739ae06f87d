package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"evoloop/internal/artifact"
	"evoloop/internal/mutation"
	"evoloop/internal/statevec"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Schema          FixtureSchema           `json:"schema"`
	Artifact        FixtureArtifact         `json:"artifact"`
	Config          FixtureConfig           `json:"config"`
	Observations    []FixtureObservation    `json:"observations"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results,omitempty"`
}

// FixtureSchema mirrors statevec.Schema with JSON tags.
type FixtureSchema struct {
	Version int            `json:"version"`
	Fields  []FixtureField `json:"fields"`
}

// FixtureField mirrors statevec.FieldSpec with JSON tags.
type FixtureField struct {
	Name    string  `json:"name"`
	Default float64 `json:"default,omitempty"`
}

// FixtureArtifact is the JSON-serializable starting artifact.
type FixtureArtifact struct {
	Body    string             `json:"body"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// FixtureConfig bundles the pipeline settings for a fixture run.
type FixtureConfig struct {
	GlobalThreshold float64            `json:"global_threshold"`
	Rules           []mutation.Rule    `json:"rules"`
	Weights         map[string]float64 `json:"weights"`
}

// FixtureObservation is one recorded state observation.
type FixtureObservation struct {
	ObservedAt time.Time          `json:"observed_at"`
	Values     map[string]float64 `json:"values"`
}

// FixtureExpectedResult captures the expected action per step.
type FixtureExpectedResult struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// SaveFixture writes a fixture as indented JSON, for recording runs.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToSchema converts a FixtureSchema to a domain schema.
func (fs *FixtureSchema) ToSchema() statevec.Schema {
	fields := make([]statevec.FieldSpec, len(fs.Fields))
	for i, f := range fs.Fields {
		fields[i] = statevec.FieldSpec{Name: f.Name, Default: f.Default}
	}
	return statevec.Schema{Version: fs.Version, Fields: fields}
}

// ToArtifact converts a FixtureArtifact to a fresh domain artifact.
func (fa *FixtureArtifact) ToArtifact() artifact.Artifact {
	return artifact.New(fa.Body, fa.Metrics)
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	return ReplayConfig{
		GlobalThreshold: fc.GlobalThreshold,
		Rules:           mutation.RuleSet(fc.Rules),
		Weights:         fc.Weights,
	}
}

// ToVectors converts fixture observations to domain vectors against the
// given schema. Fails on the first observation with unknown fields.
func (f *Fixture) ToVectors() ([]statevec.Vector, error) {
	schema := f.Schema.ToSchema()
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("fixture schema: %w", err)
	}
	out := make([]statevec.Vector, 0, len(f.Observations))
	for i, obs := range f.Observations {
		v, err := statevec.New(schema, obs.Values, obs.ObservedAt)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// #endregion fixture-loader
