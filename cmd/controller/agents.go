package main

// #region imports
import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/contexts"
)

// #endregion imports

// #region agent-cmd
func newAgentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "agent", Short: "Manage agents"}

	var description string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			agent, err := e.Contexts.CreateAgent(cmd.Context(), strings.Join(args, " "), description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agent %d created: %s\n", agent.ID, agent.Name)
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "free-text description")

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			agents, err := e.Contexts.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, agents)
			}
			if len(agents) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no agents found")
				return nil
			}
			fmt.Fprintf(out, "%-6s  %-24s  %s\n", "ID", "Name", "Created")
			for _, ag := range agents {
				fmt.Fprintf(out, "%-6d  %-24s  %s\n", ag.ID, ag.Name, ag.CreatedAt.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")

	cmd.AddCommand(create, list)
	return cmd
}

// #endregion agent-cmd

// #region context-cmd
func newContextCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "context", Short: "Manage an agent's question/answer examples"}

	var question, answer string
	add := &cobra.Command{
		Use:   "add AGENT_ID",
		Short: "Add one example to an agent",
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

			c, err := e.Contexts.AddContext(cmd.Context(), agentID, contexts.Example{Question: question, Answer: answer})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "context %d added to agent %d\n", c.ID, agentID)
			return nil
		},
	}
	add.Flags().StringVarP(&question, "question", "q", "", "example question")
	add.Flags().StringVarP(&answer, "answer", "a", "", "answer returned for the question")
	add.MarkFlagRequired("question")
	add.MarkFlagRequired("answer")

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list AGENT_ID",
		Short: "List an agent's examples",
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

			examples, err := e.Contexts.ListContexts(cmd.Context(), agentID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, examples)
			}
			for i, ex := range examples {
				fmt.Fprintf(out, "%3d. %s\n     -> %s\n", i+1, ex.Question, ex.Answer)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")

	remove := &cobra.Command{
		Use:   "delete CONTEXT_ID",
		Short: "Delete one example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextID, err := parseID(args[0], "context")
			if err != nil {
				return err
			}
			e, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return errors.Wrapf(e.Contexts.DeleteContext(cmd.Context(), contextID), "delete context %d", contextID)
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

// #endregion context-cmd
