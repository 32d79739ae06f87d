package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"evoloop/internal/persist"
	"evoloop/internal/profile"
	"evoloop/internal/replay"
	"evoloop/internal/statevec"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to evoloop.db")
	profileID := flag.String("profile", "", "profile id (or unique prefix) to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	threshold := flag.Float64("threshold", 0.1, "global threshold to embed in the fixture")
	flag.Parse()

	if *dbPath == "" || *profileID == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/evoloop.db --profile id --out path/to/fixture.json [--threshold T]")
		os.Exit(2)
	}

	if err := run(*dbPath, *profileID, *outPath, *threshold); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, profileID, outPath string, threshold float64) error {
	store, err := persist.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profiles, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	p, err := findProfile(profiles, profileID)
	if err != nil {
		return err
	}
	if p.LastStateVector == nil {
		return fmt.Errorf("profile %s has no recorded state vector", p.ID)
	}

	fixture := buildFixture(p, threshold)
	if err := replay.SaveFixture(outPath, &fixture); err != nil {
		return err
	}

	fmt.Printf("Wrote fixture to %s (profile %s, %d observation)\n",
		outPath, p.ID, len(fixture.Observations))
	return nil
}

func findProfile(profiles []profile.Profile, id string) (profile.Profile, error) {
	var matches []profile.Profile
	for _, p := range profiles {
		if p.ID == id {
			return p, nil
		}
		if strings.HasPrefix(p.ID, id) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return profile.Profile{}, fmt.Errorf("no profile matching %q", id)
	default:
		return profile.Profile{}, fmt.Errorf("prefix %q matches %d profiles", id, len(matches))
	}
}

// #endregion extract

// #region build

// buildFixture exports a runnable fixture skeleton: the profile's original
// artifact, a schema recovered from its last observation, that observation
// as the cold-start step, and uniform fitness weights over the artifact
// metrics. Rules start empty; the operator appends rules and the recorded
// observation sequence under test.
func buildFixture(p profile.Profile, threshold float64) replay.Fixture {
	last := *p.LastStateVector

	fields := make([]replay.FixtureField, 0, len(last.Fields()))
	for _, name := range last.Fields() {
		fields = append(fields, replay.FixtureField{Name: name})
	}

	weights := make(map[string]float64, len(p.OriginalArtifact.Metrics))
	if n := len(p.OriginalArtifact.Metrics); n > 0 {
		for name := range p.OriginalArtifact.Metrics {
			weights[name] = 1.0 / float64(n)
		}
	}

	return replay.Fixture{
		Description: fmt.Sprintf("Exported from profile %s after %d evolutions", p.ID, p.EvolutionCount),
		Schema: replay.FixtureSchema{
			Version: last.SchemaVersion(),
			Fields:  fields,
		},
		Artifact: replay.FixtureArtifact{
			Body:    p.OriginalArtifact.Body,
			Metrics: p.OriginalArtifact.Metrics,
		},
		Config: replay.FixtureConfig{
			GlobalThreshold: threshold,
			Weights:         weights,
		},
		Observations: []replay.FixtureObservation{
			{ObservedAt: observedAtOf(last), Values: last.Values()},
		},
		ExpectedResults: []replay.FixtureExpectedResult{
			{Step: 0, Action: "cold_start"},
		},
	}
}

func observedAtOf(v statevec.Vector) time.Time {
	if t := v.ObservedAt(); !t.IsZero() {
		return t
	}
	return time.Now().UTC()
}

// #endregion build
