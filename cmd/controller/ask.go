package main

// #region imports
import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/engine"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
)

// #endregion imports

// #region ask-cmd
func newAskCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "ask AGENT_ID [QUESTION...]",
		Short: "Answer a question, or start an interactive session when none is given",
		Args:  cobra.MinimumNArgs(1),
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

			out := cmd.OutOrStdout()
			if len(args) > 1 {
				d, err := e.ResolveQuestion(cmd.Context(), agentID, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				return printDecision(out, d, jsonOut)
			}
			return repl(cmd.Context(), e, agentID, cmd.InOrStdin(), out, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output decisions as JSON")
	return cmd
}

// #endregion ask-cmd

// #region repl
func repl(ctx context.Context, e *engine.Engine, agentID int64, in io.Reader, out io.Writer, jsonOut bool) error {
	name, err := e.Contexts.AgentName(ctx, agentID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s ready (remote model: %s).\n", name, onOff(e.RemoteEnabled()))
	fmt.Fprintln(out, "Type a question (or 'quit' to exit):")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "quit" || question == "exit" {
			break
		}

		d, err := e.ResolveQuestion(ctx, agentID, question)
		if err != nil {
			return err
		}
		if err := printDecision(out, d, jsonOut); err != nil {
			return err
		}
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func printDecision(w io.Writer, d resolver.Decision, jsonOut bool) error {
	if jsonOut {
		return printJSON(w, d)
	}
	cached := ""
	if d.Cached {
		cached = " cached"
	}
	fmt.Fprintf(w, "\n%s\n\n[source=%s confidence=%.2f in_scope=%t%s]\n", d.Answer, d.Source, d.Confidence, d.InScope, cached)
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// #endregion repl
