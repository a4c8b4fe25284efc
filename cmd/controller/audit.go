package main

// #region imports
import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/resolver"
)

// #endregion imports

// #region audit-cmd
func newAuditCmd(a *app) *cobra.Command {
	var (
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "audit AGENT_ID",
		Short: "Show recent resolver decisions for an agent",
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

			entries, err := e.Audit.Recent(cmd.Context(), agentID, last)
			if err != nil {
				return err
			}
			counts, err := e.Audit.CountBySource(cmd.Context(), agentID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, map[string]any{"recent": entries, "by_source": counts})
			}

			fmt.Fprintf(out, "%-20s  %-16s  %6s  %-5s  %s\n", "Time", "Source", "Conf", "Hit", "Reason")
			for _, en := range entries {
				hit := ""
				if en.CacheHit {
					hit = "yes"
				}
				fmt.Fprintf(out, "%-20s  %-16s  %6.2f  %-5s  %s\n",
					en.CreatedAt.Format("2006-01-02T15:04:05Z"), en.Source, en.Confidence, hit, en.Reason)
			}

			sources := make([]string, 0, len(counts))
			for s := range counts {
				sources = append(sources, s)
			}
			sort.Slice(sources, func(i, j int) bool { return rank(sources[i]) < rank(sources[j]) })
			fmt.Fprintln(out)
			for _, s := range sources {
				fmt.Fprintf(out, "%-16s  %d\n", s, counts[s])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent decisions")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// rank orders sources the way the resolver tries them; unknown ones go last.
func rank(source string) int {
	for i, s := range resolver.Sources {
		if string(s) == source {
			return i
		}
	}
	return len(resolver.Sources)
}

// #endregion audit-cmd
