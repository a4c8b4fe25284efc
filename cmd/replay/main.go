package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/replay"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
)

// #region main

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and maps the outcome to an exit code: 0 when every
// turn passes, 1 when any diverges, 2 on usage or load errors.
func run(args []string, stdout, stderr io.Writer) int {
	var (
		fixturePath string
		jsonOut     bool
		code        int
	)
	cmd := &cobra.Command{
		Use:           "replay --fixture path/to/fixture.json",
		Short:         "Replay a question fixture through an in-memory resolver and compare outcomes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			code, err = runFixtureMode(cmd.Context(), fixturePath, jsonOut, stdout)
			return err
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to fixture JSON")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output results as JSON")
	cmd.MarkFlagRequired("fixture")
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	return code
}

// #endregion main

// #region fixture-mode

func runFixtureMode(ctx context.Context, path string, jsonOut bool, w io.Writer) (int, error) {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return 2, err
	}
	config, err := f.ToReplayConfig()
	if err != nil {
		return 2, err
	}

	interactions := make([]replay.Interaction, len(f.Interactions))
	for i := range f.Interactions {
		interactions[i] = f.Interactions[i].ToInteraction()
	}

	results, trained, err := replay.Replay(ctx, f.Contexts, interactions, f.Expectations(), config)
	if err != nil {
		return 2, err
	}
	summary := replay.Summarize(results, trained)

	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"results": results, "summary": summary}); err != nil {
			return 2, err
		}
	} else {
		printComparison(w, f, results, summary)
	}
	if summary.Failed > 0 {
		return 1, nil
	}
	return 0, nil
}

// #endregion fixture-mode

// #region output

// printComparison outputs a comparison table of expected vs replayed sources.
func printComparison(w io.Writer, f *replay.Fixture, results []replay.ReplayResult, s replay.ReplaySummary) {
	expected := make(map[string]string, len(f.ExpectedResults))
	for _, e := range f.ExpectedResults {
		expected[e.TurnID] = e.Source
	}

	if f.Description != "" {
		fmt.Fprintf(w, "%s\n\n", f.Description)
	}
	fmt.Fprintf(w, "%-12s| %-17s| %-17s| %-6s| %s\n", "Turn", "Expected", "Replayed", "Match", "Reason")
	fmt.Fprintf(w, "%-12s+%-18s+%-18s+%-7s+%s\n",
		"------------", "------------------", "------------------", "-------", "--------------------")
	for _, r := range results {
		exp := expected[r.TurnID]
		if exp == "" {
			exp = "-"
		}
		match := "OK"
		if r.Action != "pass" {
			match = "DIFF"
		}
		got := string(r.Decision.Source)
		if r.Decision.Cached {
			got += "*"
		}
		fmt.Fprintf(w, "%-12s| %-17s| %-17s| %-6s| %s\n", r.TurnID, exp, got, match, r.Reason)
	}

	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge, %d cached, %d remote calls\n",
		s.TotalTurns, s.Passed, s.Failed, s.Cached, s.RemoteCalls)
	if s.Training != nil {
		fmt.Fprintf(w, "Training: %d examples, %d augmented, cv=%.4f (ngram_max=%d alpha=%.2f)\n",
			s.Training.ExamplesCount, s.Training.AugmentedCount, s.Training.BestScore,
			s.Training.BestParams.NGramMax, s.Training.BestParams.Alpha)
	} else {
		fmt.Fprintln(w, "Training: skipped, agent left untrained")
	}

	sources := make([]resolver.Source, 0, len(s.BySource))
	for src := range s.BySource {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, src := range sources {
		fmt.Fprintf(w, "  %-17s %d\n", src, s.BySource[src])
	}
}

// #endregion output
