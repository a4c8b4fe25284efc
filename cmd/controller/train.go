package main

// #region imports
import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/artifact"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/classifier"
)

// #endregion imports

// #region train-cmd
func newTrainCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "train AGENT_ID",
		Short: "Train an agent's classifier on its stored examples and activate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := parseID(args[0], "agent")
			if err != nil {
				return err
			}
			e, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			res, err := e.TrainAgent(cmd.Context(), agentID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "artifact %s active for agent %d\n", shortID(res.ArtifactID), agentID)
			fmt.Fprintf(out, "  examples=%d augmented=%d folds=%d\n", res.ExamplesCount, res.AugmentedCount, res.Folds)
			fmt.Fprintf(out, "  best: ngram_max=%d alpha=%.2f cv=%.4f (%s)\n",
				res.BestParams.NGramMax, res.BestParams.Alpha, res.BestScore, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// #endregion train-cmd

// #region artifacts-cmd

type artifactRow struct {
	ArtifactID     string             `json:"artifact_id"`
	Active         bool               `json:"active"`
	ExamplesCount  int                `json:"examples_count"`
	AugmentedCount int                `json:"augmented_count"`
	BestScore      float64            `json:"best_score"`
	BestParams     *classifier.Params `json:"best_params,omitempty"`
	CreatedAt      string             `json:"created_at"`
}

func toArtifactRow(rec artifact.Record) artifactRow {
	row := artifactRow{
		ArtifactID:     rec.ArtifactID,
		Active:         rec.IsActive,
		ExamplesCount:  rec.ExamplesCount,
		AugmentedCount: rec.AugmentedCount,
		BestScore:      rec.BestScore,
		CreatedAt:      rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	var p classifier.Params
	if rec.BestParams != "" && json.Unmarshal([]byte(rec.BestParams), &p) == nil {
		row.BestParams = &p
	}
	return row
}

func newArtifactsCmd(a *app) *cobra.Command {
	var (
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "artifacts AGENT_ID",
		Short: "List an agent's trained artifacts, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := parseID(args[0], "agent")
			if err != nil {
				return err
			}
			e, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			recs, err := e.Artifacts.List(cmd.Context(), agentID, last)
			if err != nil {
				return err
			}
			rows := make([]artifactRow, len(recs))
			for i, rec := range recs {
				rows[i] = toArtifactRow(rec)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no artifacts found")
				return nil
			}
			printArtifactTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent artifacts")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")

	activate := &cobra.Command{
		Use:   "activate ARTIFACT_ID",
		Short: "Make a previously trained artifact the agent's active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			rec, err := e.Artifacts.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			e.Inference.Invalidate(rec.AgentID)
			fmt.Fprintf(cmd.OutOrStdout(), "artifact %s active for agent %d\n", shortID(rec.ArtifactID), rec.AgentID)
			return nil
		},
	}
	cmd.AddCommand(activate)
	return cmd
}

func printArtifactTable(w io.Writer, rows []artifactRow) {
	fmt.Fprintf(w, "%-12s  %-6s  %8s  %9s  %7s  %-14s  %s\n",
		"Artifact", "Active", "Examples", "Augmented", "CV", "Params", "Time")
	fmt.Fprintf(w, "%-12s+-%-6s+-%8s+-%9s+-%7s+-%-14s+-%s\n",
		"------------", "------", "--------", "---------", "-------", "--------------", "--------------------")
	for _, r := range rows {
		active := ""
		if r.Active {
			active = "*"
		}
		params := "-"
		if r.BestParams != nil {
			params = fmt.Sprintf("n=%d a=%.2f", r.BestParams.NGramMax, r.BestParams.Alpha)
		}
		fmt.Fprintf(w, "%-12s  %-6s  %8d  %9d  %7.4f  %-14s  %s\n",
			shortID(r.ArtifactID), active, r.ExamplesCount, r.AugmentedCount, r.BestScore, params, r.CreatedAt)
	}
}

// #endregion artifacts-cmd
