package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/replay"
)

// #region main

func main() {
	if err := newCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd(stdout io.Writer) *cobra.Command {
	var (
		dbPath  string
		agentID int64
		outPath string
		profile string
	)
	cmd := &cobra.Command{
		Use:          "fixture-export --db path/to/db --agent N --out path/to/fixture.json",
		Short:        "Export an agent's examples as a self-consistency replay fixture",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), dbPath, agentID, profile, outPath, stdout)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the engine database")
	cmd.Flags().Int64Var(&agentID, "agent", 0, "agent id")
	cmd.Flags().StringVar(&outPath, "out", "", "output fixture JSON path")
	cmd.Flags().StringVar(&profile, "profile", "", "deployment profile recorded in the fixture")
	cmd.MarkFlagRequired("db")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("out")
	return cmd
}

// #endregion main

// #region extract

func run(ctx context.Context, dbPath string, agentID int64, profile, outPath string, w io.Writer) error {
	if _, err := os.Stat(dbPath); err != nil {
		return errors.Wrap(err, "open db")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return errors.Wrap(err, "open db")
	}
	defer db.Close()

	store, err := contexts.NewStore(db)
	if err != nil {
		return err
	}
	agent, err := store.Agent(ctx, agentID)
	if err != nil {
		return err
	}
	examples, err := store.ListContexts(ctx, agentID)
	if err != nil {
		return err
	}
	if len(examples) == 0 {
		return errors.Errorf("agent %d has no contexts to export", agentID)
	}

	fmt.Fprintf(w, "Found %d contexts for agent %d (%s)\n", len(examples), agentID, agent.Name)

	fixture := buildFixture(agent, examples, profile)
	if err := replay.WriteFixture(fixture, outPath); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote fixture to %s (%d interactions)\n", outPath, len(fixture.Interactions))
	return nil
}

// #endregion extract

// #region output

// buildFixture asks every stored question back and expects its own answer.
// The remote model is off, so every turn goes through keyword matching.
func buildFixture(agent contexts.Agent, examples []contexts.Example, profile string) replay.Fixture {
	interactions := make([]replay.FixtureInteraction, len(examples))
	expected := make([]replay.FixtureExpectedResult, len(examples))
	inScope := true
	for i, ex := range examples {
		turnID := fmt.Sprintf("turn-%d", i+1)
		interactions[i] = replay.FixtureInteraction{TurnID: turnID, Question: ex.Question}
		expected[i] = replay.FixtureExpectedResult{
			TurnID:         turnID,
			AnswerContains: ex.Answer,
			InScope:        &inScope,
		}
	}

	remoteEnabled := false
	return replay.Fixture{
		Description:     fmt.Sprintf("Self-consistency export: %d contexts of agent %d (%s)", len(examples), agent.ID, agent.Name),
		Profile:         profile,
		Config:          replay.FixtureConfig{RemoteEnabled: &remoteEnabled},
		Contexts:        examples,
		Interactions:    interactions,
		ExpectedResults: expected,
	}
}

// #endregion output
