package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"evoloop/internal/persist"
	"evoloop/internal/profile"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to evoloop.db")
	profileID := flag.String("profile", "", "show single profile detail")
	last := flag.Int("last", 10, "history entries to show in detail mode")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/evoloop.db [--profile id] [--last N] [--json]")
		os.Exit(2)
	}

	store, err := persist.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profiles, err := store.LoadAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load profiles: %v\n", err)
		os.Exit(1)
	}

	if *profileID != "" {
		if err := runDetailMode(profiles, *profileID, *last, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := runListMode(profiles, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	ProfileID       string  `json:"profile_id"`
	ArtifactVersion int     `json:"artifact_version"`
	Evolutions      int     `json:"evolutions"`
	LastFitness     float64 `json:"last_fitness"`
	LastEvaluatedAt string  `json:"last_evaluated_at,omitempty"`
	LastError       string  `json:"last_error,omitempty"`
}

func runListMode(profiles []profile.Profile, jsonOut bool) error {
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "no profiles found")
		return nil
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })

	rows := make([]listRow, len(profiles))
	for i, p := range profiles {
		rows[i] = listRow{
			ProfileID:       p.ID,
			ArtifactVersion: p.CurrentArtifact.Version,
			Evolutions:      p.EvolutionCount,
			LastError:       p.LastErr,
		}
		if !p.LastEvaluatedAt.IsZero() {
			rows[i].LastEvaluatedAt = p.LastEvaluatedAt.Format(time.RFC3339)
		}
		if n := len(p.History); n > 0 {
			rows[i].LastFitness = p.History[n-1].Fitness.Overall
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %8s  %10s  %8s  %-20s  %s\n",
		"Profile", "Version", "Evolutions", "Fitness", "Last Eval", "Error")
	fmt.Printf("%-12s+-%8s+-%10s+-%8s+-%-20s+-%s\n",
		"------------", "--------", "----------", "--------", "--------------------", "--------")
	for _, r := range rows {
		lastEval := "—"
		if r.LastEvaluatedAt != "" {
			lastEval = r.LastEvaluatedAt
		}
		fmt.Printf("%-12s  %8d  %10d  %8.4f  %-20s  %s\n",
			shortID(r.ProfileID), r.ArtifactVersion, r.Evolutions, r.LastFitness, lastEval, r.LastError)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	ProfileID       string                 `json:"profile_id"`
	CreatedAt       string                 `json:"created_at"`
	LastEvaluatedAt string                 `json:"last_evaluated_at,omitempty"`
	Evolutions      int                    `json:"evolutions"`
	LastError       string                 `json:"last_error,omitempty"`
	OriginalVersion int                    `json:"original_version"`
	CurrentVersion  int                    `json:"current_version"`
	Body            string                 `json:"body"`
	Metrics         map[string]float64     `json:"metrics"`
	History         []profile.HistoryEntry `json:"history"`
}

func runDetailMode(profiles []profile.Profile, id string, last int, jsonOut bool) error {
	p, err := findProfile(profiles, id)
	if err != nil {
		return err
	}

	history := p.History
	if last > 0 && len(history) > last {
		history = history[len(history)-last:]
	}

	out := detailOutput{
		ProfileID:       p.ID,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		Evolutions:      p.EvolutionCount,
		LastError:       p.LastErr,
		OriginalVersion: p.OriginalArtifact.Version,
		CurrentVersion:  p.CurrentArtifact.Version,
		Body:            p.CurrentArtifact.Body,
		Metrics:         p.CurrentArtifact.Metrics,
		History:         history,
	}
	if !p.LastEvaluatedAt.IsZero() {
		out.LastEvaluatedAt = p.LastEvaluatedAt.Format(time.RFC3339)
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Profile:     %s\n", out.ProfileID)
	fmt.Printf("Created:     %s\n", out.CreatedAt)
	if out.LastEvaluatedAt != "" {
		fmt.Printf("Last Eval:   %s\n", out.LastEvaluatedAt)
	}
	fmt.Printf("Evolutions:  %d (version %d → %d)\n", out.Evolutions, out.OriginalVersion, out.CurrentVersion)
	if out.LastError != "" {
		fmt.Printf("Last Error:  %s\n", out.LastError)
	}

	fmt.Printf("\nMetrics:\n")
	names := make([]string, 0, len(out.Metrics))
	for name := range out.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-16s %.4f\n", name, out.Metrics[name])
	}

	fmt.Printf("\nBody:\n%s\n", indent(out.Body))

	if len(out.History) > 0 {
		fmt.Printf("\nHistory (last %d):\n", len(out.History))
		for _, h := range out.History {
			fmt.Printf("  %s  fitness=%.4f  aggregate=%.4f  directives=%d\n",
				h.Timestamp.Format(time.RFC3339), h.Fitness.Overall, h.Aggregate, len(h.Directives))
		}
	}
	return nil
}

// findProfile matches by full id or unique prefix.
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

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

// #endregion output
