package main

import (
	"flag"
	"fmt"
	"os"

	"evoloop/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	verbose := flag.Bool("v", false, "print directives per evolved step")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [-v]")
		os.Exit(2)
	}

	os.Exit(runFixture(*fixturePath, *verbose))
}

// #endregion main

// #region run

func runFixture(path string, verbose bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	start := f.Artifact.ToArtifact()
	config := f.Config.ToReplayConfig()
	observations, err := f.ToVectors()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fixture observations: %v\n", err)
		return 2
	}

	results, summary, err := replay.Replay(start, observations, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	if f.Description != "" {
		fmt.Printf("%s\n\n", f.Description)
	}

	exitCode := 0
	if len(f.ExpectedResults) > 0 {
		exitCode = printComparison(results, f.ExpectedResults)
	} else {
		printSteps(results)
	}

	if verbose {
		printDirectives(results)
	}

	fmt.Printf("\nSummary: %d steps, %d cold-start, %d idle, %d evolved; final artifact version %d\n",
		summary.TotalSteps, summary.ColdStarts, summary.Idles, summary.Evolutions,
		summary.FinalArtifact.Version)
	return exitCode
}

// #endregion run

// #region output

// printComparison outputs expected-vs-replayed per step and returns the exit
// code: 0 when every step matches, 1 otherwise.
func printComparison(results []replay.StepResult, expected []replay.FixtureExpectedResult) int {
	fmt.Printf("%-6s| %-12s| %-12s| %s\n", "Step", "Expected", "Replayed", "Match")
	fmt.Printf("%-6s+%-13s+%-13s+%s\n", "------", "-------------", "-------------", "------")

	matches := 0
	total := len(results)
	if len(expected) < total {
		total = len(expected)
	}

	for i := 0; i < total; i++ {
		exp := expected[i].Action
		got := results[i].Action
		match := "DIFF"
		if exp == got {
			match = "OK"
			matches++
		}
		fmt.Printf("%-6d| %-12s| %-12s| %s\n", results[i].Step, exp, got, match)
	}

	diverge := total - matches
	fmt.Printf("\n%d total, %d match, %d diverge\n", total, matches, diverge)
	if diverge > 0 {
		return 1
	}
	return 0
}

func printSteps(results []replay.StepResult) {
	fmt.Printf("%-6s  %-12s  %10s  %s\n", "Step", "Action", "Aggregate", "Version")
	for _, r := range results {
		fmt.Printf("%-6d  %-12s  %10.4f  %d\n", r.Step, r.Action, r.Aggregate, r.ArtifactVersion)
	}
}

func printDirectives(results []replay.StepResult) {
	for _, r := range results {
		for _, d := range r.Directives {
			fmt.Printf("step %d: %s target=%q intensity=%.4f inverse=%v\n",
				r.Step, d.Kind, d.Target, d.Intensity, d.Inverse)
		}
	}
}

// #endregion output
