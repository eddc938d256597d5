package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <branch>",
	Short: "Merge a branch into Main",
	Long: `Merge a branch's data into the project's Main branch.

The merge is additive and idempotent: items whose natural key already
exists under Main are skipped, never overwritten, and running the same
merge twice adopts nothing new. The source branch keeps all of its rows.
Items that could not be considered are reported with their reason.

Examples:
  branchlite merge feature-x --project demo`,
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

var mergeProject string

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVarP(&mergeProject, "project", "p", "", "project id or name")
}

func runMerge(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, ps, err := a.projectStore(ctx, mergeProject)
	if err != nil {
		return err
	}
	branch, err := exactBranch(ctx, ps, args[0])
	if err != nil {
		return err
	}

	rep, err := a.merger.ToMain(ctx, p.ID, branch.ID)
	if err != nil {
		return err
	}

	if quiet {
		return nil
	}
	fmt.Print(formatMergeReport(rep))
	return nil
}
