package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/branchlite/branchlite/internal/changelog"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show a branch's changelog",
	Long: `List a branch's changelog entries, newest first.

Every recorded action is listed: executed mutations, branch and merge
operations, table conversions. Entries adopted from a merged branch carry
their origin in the output payload.

Examples:
  branchlite log --project demo
  branchlite log --project demo --branch feature-x --limit 10`,
	RunE: runLog,
}

var (
	logProject string
	logBranch  string
	logLimit   int
)

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().StringVarP(&logProject, "project", "p", "", "project id or name")
	logCmd.Flags().StringVarP(&logBranch, "branch", "b", "", "branch id or name (default: Main)")
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "maximum number of entries")
}

func runLog(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, ps, err := a.projectStore(ctx, logProject)
	if err != nil {
		return err
	}
	branch, err := resolveBranch(ctx, ps, logBranch)
	if err != nil {
		return err
	}

	entries, err := changelog.RecentEntries(ctx, ps.DB(), p.ID, branch.ID, logLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No changelog entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tACTION\tSUMMARY")
	fmt.Fprintln(w, "──\t────\t──────\t───────")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.Action, truncateLine(e.Summary, 60))
	}
	w.Flush()
	return nil
}

// truncateLine flattens newlines and cuts the string to maxLen.
func truncateLine(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
