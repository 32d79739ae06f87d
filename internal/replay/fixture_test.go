package replay

import (
	"os"
	"path/filepath"
	"testing"
)

// #region fixture-tests

// TestFixture_DriftSession loads the drift_session fixture, runs Replay(),
// and compares each step's Action against the expected action. This is the
// primary regression test — if threshold or rule semantics change, this
// catches drift.
func TestFixture_DriftSession(t *testing.T) {
	fixturePath := filepath.Join("testdata", "drift_session.json")
	f, err := LoadFixture(fixturePath)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	// Convert fixture types to domain types
	start := f.Artifact.ToArtifact()
	config := f.Config.ToReplayConfig()
	observations, err := f.ToVectors()
	if err != nil {
		t.Fatalf("ToVectors: %v", err)
	}

	// Run replay
	results, summary, err := Replay(start, observations, config)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(results) != len(f.ExpectedResults) {
		t.Fatalf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}

	for i, expected := range f.ExpectedResults {
		actual := results[i]
		if actual.Step != expected.Step {
			t.Errorf("step %d: expected step=%d, got %d", i, expected.Step, actual.Step)
		}
		if actual.Action != expected.Action {
			t.Errorf("step %d: expected action=%s, got action=%s (aggregate %f)",
				i, expected.Action, actual.Action, actual.Aggregate)
		}
	}

	if summary.Evolutions == 0 {
		t.Error("drift session fixture should evolve the artifact at least once")
	}
}

// TestSaveFixture_RoundTrip writes a fixture and loads it back unchanged.
func TestSaveFixture_RoundTrip(t *testing.T) {
	f := &Fixture{
		Description: "round trip",
		Schema: FixtureSchema{
			Version: 1,
			Fields:  []FixtureField{{Name: "latency"}},
		},
		Artifact: FixtureArtifact{Body: "body", Metrics: map[string]float64{"latency": 0.5}},
		Config: FixtureConfig{
			GlobalThreshold: 0.1,
			Weights:         map[string]float64{"latency": 1},
		},
	}

	path := filepath.Join(t.TempDir(), "rt.json")
	if err := SaveFixture(path, f); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if got.Description != f.Description {
		t.Errorf("description differs: %q", got.Description)
	}
	if got.Schema.Version != 1 || len(got.Schema.Fields) != 1 {
		t.Errorf("schema differs: %+v", got.Schema)
	}
	if got.Artifact.Metrics["latency"] != 0.5 {
		t.Error("artifact metrics differ")
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	// Write a temp file with invalid JSON
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// TestFixture_UnknownField verifies that observations with fields outside
// the schema fail conversion.
func TestFixture_UnknownField(t *testing.T) {
	f := &Fixture{
		Schema: FixtureSchema{Version: 1, Fields: []FixtureField{{Name: "latency"}}},
		Observations: []FixtureObservation{
			{Values: map[string]float64{"bogus": 1}},
		},
	}
	if _, err := f.ToVectors(); err == nil {
		t.Fatal("expected error for unknown observation field")
	}
}

// #endregion fixture-tests
